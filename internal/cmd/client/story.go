package client

import (
	"net/http"

	"github.com/spf13/cobra"
)

// NewStoryCommand constructs the `story` command group.
func NewStoryCommand(baseURL BaseURLFunc) *cobra.Command {
	storyCmd := &cobra.Command{Use: "story", Short: "Story and draft operations"}
	storyCmd.AddCommand(
		newStoryCreateCommand(baseURL),
		newDraftEditCommand(baseURL),
		newDraftGetCommand(baseURL),
		newDraftStatusCommand(baseURL),
	)
	return storyCmd
}

func newStoryCreateCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a story owned by the acting user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			storyID, _ := cmd.Flags().GetString("id")
			title, _ := cmd.Flags().GetString("title")
			resp, err := doJSON(http.MethodPost, baseURL()+"/v1/stories/create", userID, name,
				map[string]string{"storyId": storyID, "title": title})
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("id", "", "Story ID (generated when omitted)")
	cmd.Flags().String("title", "", "Story title")
	return cmd
}

func newDraftEditCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Buffer a draft edit (persisted after the debounce window)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			storyID, _ := cmd.Flags().GetString("id")
			content, _ := cmd.Flags().GetString("content")
			resp, err := doJSON(http.MethodPost, baseURL()+"/v1/stories/draft", userID, name,
				map[string]string{"storyId": storyID, "content": content})
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("id", "", "Story ID")
	cmd.Flags().String("content", "", "Draft content")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDraftGetCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch the last saved draft content",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			storyID, _ := cmd.Flags().GetString("id")
			resp, err := doJSON(http.MethodGet, baseURL()+"/v1/stories/draft?storyId="+storyID, userID, name, nil)
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("id", "", "Story ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDraftStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the autosave state for a story",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			storyID, _ := cmd.Flags().GetString("id")
			resp, err := doJSON(http.MethodGet, baseURL()+"/v1/stories/draft/status?storyId="+storyID, userID, name, nil)
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("id", "", "Story ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
