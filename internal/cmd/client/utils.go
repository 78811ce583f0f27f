package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

var (
	statusOK   = color.New(color.FgGreen)
	statusWarn = color.New(color.FgYellow)
	statusErr  = color.New(color.FgRed)
	eventColor = map[string]*color.Color{
		"connected":         color.New(color.FgGreen, color.Bold),
		"heartbeat":         color.New(color.Faint),
		"typing.update":     color.New(color.FgCyan),
		"typing.snapshot":   color.New(color.FgCyan, color.Faint),
		"story.updated":     color.New(color.FgMagenta),
		"draft.save_failed": color.New(color.FgRed, color.Bold),
		"unread":            color.New(color.FgYellow),
		"notification":      color.New(color.FgWhite, color.Bold),
	}
)

// identityFlags registers the shared --user/--name flags. Defaults come from
// RIPPLE_USER and RIPPLE_NAME.
func identityFlags(cmd *cobra.Command) {
	cmd.Flags().String("user", os.Getenv("RIPPLE_USER"), "Acting user ID")
	cmd.Flags().String("name", os.Getenv("RIPPLE_NAME"), "Acting user display name")
}

// identityFrom reads the --user/--name flags, requiring a user ID.
func identityFrom(cmd *cobra.Command) (userID, name string, err error) {
	userID, _ = cmd.Flags().GetString("user")
	name, _ = cmd.Flags().GetString("name")
	if userID == "" {
		return "", "", fmt.Errorf("--user is required (or set RIPPLE_USER)")
	}
	if name == "" {
		name = userID
	}
	return userID, name, nil
}

// doJSON issues a request with identity headers and a JSON body.
func doJSON(method, url, userID, name string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("X-User-Name", name)
	return http.DefaultClient.Do(req)
}

// printStatus reports the response status with a color matching severity and
// echoes any JSON body.
func printStatus(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	c := statusOK
	switch {
	case resp.StatusCode >= 500:
		c = statusErr
	case resp.StatusCode >= 400:
		c = statusWarn
	}
	c.Println("status:", resp.Status)
	b, _ := io.ReadAll(resp.Body)
	if len(bytes.TrimSpace(b)) > 0 {
		var pretty bytes.Buffer
		if json.Indent(&pretty, b, "", "  ") == nil {
			fmt.Println(pretty.String())
		} else {
			fmt.Println(string(b))
		}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
