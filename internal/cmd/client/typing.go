package client

import (
	"net/http"

	"github.com/spf13/cobra"
)

// NewTypingCommand constructs the `typing` command group.
func NewTypingCommand(baseURL BaseURLFunc) *cobra.Command {
	typingCmd := &cobra.Command{Use: "typing", Short: "Typing presence operations"}
	typingCmd.AddCommand(
		newTypingStartCommand(baseURL),
		newTypingStopCommand(baseURL),
		newTypingListCommand(baseURL),
	)
	return typingCmd
}

func newTypingStartCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Mark the acting user as typing in a story",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			storyID, _ := cmd.Flags().GetString("story")
			resp, err := doJSON(http.MethodPost, baseURL()+"/v1/typing", userID, name,
				map[string]string{"storyId": storyID})
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("story", "", "Story ID")
	_ = cmd.MarkFlagRequired("story")
	return cmd
}

func newTypingStopCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Clear the acting user's typing entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			storyID, _ := cmd.Flags().GetString("story")
			resp, err := doJSON(http.MethodDelete, baseURL()+"/v1/typing", userID, name,
				map[string]string{"storyId": storyID})
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("story", "", "Story ID")
	_ = cmd.MarkFlagRequired("story")
	return cmd
}

func newTypingListCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List who else is typing in a story",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			storyID, _ := cmd.Flags().GetString("story")
			resp, err := doJSON(http.MethodGet, baseURL()+"/v1/typing?storyId="+storyID, userID, name, nil)
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("story", "", "Story ID")
	_ = cmd.MarkFlagRequired("story")
	return cmd
}
