package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// NewPublishCommand constructs the `publish` command.
func NewPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event on a channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			channel, _ := cmd.Flags().GetString("channel")
			eventType, _ := cmd.Flags().GetString("type")
			payload, _ := cmd.Flags().GetString("payload")
			if payload != "" && !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload must be valid JSON")
			}
			resp, err := doJSON(http.MethodPost, baseURL()+"/v1/realtime/publish", userID, name,
				map[string]any{
					"channel": channel,
					"type":    eventType,
					"payload": json.RawMessage(payload),
				})
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("channel", "", "Channel name (user/{id} or story/{id})")
	cmd.Flags().String("type", "notification", "Event type")
	cmd.Flags().String("payload", "", "JSON payload")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

// NewNotifyCommand constructs the `notify` command.
func NewNotifyCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a notification to a user and bump their unread counter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			target, _ := cmd.Flags().GetString("to")
			payload, _ := cmd.Flags().GetString("payload")
			if payload != "" && !json.Valid([]byte(payload)) {
				return fmt.Errorf("--payload must be valid JSON")
			}
			resp, err := doJSON(http.MethodPost, baseURL()+"/v1/notify", userID, name,
				map[string]any{"channel": "user/" + target, "payload": json.RawMessage(payload)})
			if err != nil {
				return err
			}
			return printStatus(resp)
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("to", "", "Target user ID")
	cmd.Flags().String("payload", "", "JSON payload")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
