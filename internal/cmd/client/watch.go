package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	ripple "github.com/storyhaven/ripple/pkg/client"
)

// NewWatchCommand constructs the `watch` command: a live subscription that
// prints every delivered event, reconnecting automatically.
func NewWatchCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to channels and print events as they arrive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, name, err := identityFrom(cmd)
			if err != nil {
				return err
			}
			channelsFlag, _ := cmd.Flags().GetString("channels")
			filter, _ := cmd.Flags().GetString("filter")
			maxAttempts, _ := cmd.Flags().GetInt("max-attempts")

			var channels []string
			for _, ch := range strings.Split(channelsFlag, ",") {
				if ch = strings.TrimSpace(ch); ch != "" {
					channels = append(channels, ch)
				}
			}

			c := ripple.New(ripple.Config{
				ServerURL:   baseURL(),
				UserID:      userID,
				DisplayName: name,
				Channels:    channels,
				Filter:      filter,
				MaxAttempts: maxAttempts,
				OnEvent:     printEvent,
				OnStateChange: func(s ripple.State) {
					color.New(color.Faint).Printf("-- %s\n", s)
				},
			})
			c.Start(cmd.Context())
			defer c.Stop()
			<-cmd.Context().Done()
			return nil
		},
	}
	identityFlags(cmd)
	cmd.Flags().String("channels", "", "Comma-separated channels (defaults to user/{user})")
	cmd.Flags().String("filter", "", "CEL filter expression applied server-side")
	cmd.Flags().Int("max-attempts", 0, "Reconnect attempts before giving up (0 = client default)")
	return cmd
}

func printEvent(ev ripple.Event) {
	c, ok := eventColor[ev.Type]
	if !ok {
		c = color.New(color.FgWhite)
	}
	ts := time.UnixMilli(ev.TimestampMs).Format("15:04:05.000")
	c.Printf("%s %-18s %s", ts, ev.Type, ev.Channel)
	if len(ev.Payload) > 0 {
		fmt.Printf(" %s", ev.Payload)
	}
	fmt.Println()
}
