package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command carrying all client command
// groups. The server command is attached separately by the binary.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "ripple",
		Short: "Ripple client commands",
	}
	root.AddCommand(
		NewStoryCommand(baseURL),
		NewTypingCommand(baseURL),
		NewPublishCommand(baseURL),
		NewNotifyCommand(baseURL),
		NewWatchCommand(baseURL),
	)
	return root
}
