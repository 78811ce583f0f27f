package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	logpkg "github.com/storyhaven/ripple/pkg/log"
)

// State is the connection lifecycle of a Client.
type State int

const (
	// StateDisconnected means the client is not connected and not trying.
	// Reached initially, after Stop, or after the retry budget is spent.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means events are flowing.
	StateConnected
	// StateBackoff means the last connection failed and the client is
	// waiting out the backoff delay before redialing.
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Event is the wire envelope delivered on a subscription.
type Event struct {
	Channel     string          `json:"channel"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	TimestampMs int64           `json:"tsMs"`
}

// Conn is the minimal connection surface the client reads from.
type Conn interface {
	ReadJSON(v any) error
	Close() error
}

// Dialer opens a connection to the subscribe endpoint. The default dials a
// WebSocket; tests substitute their own.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, u string) (Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Config configures a Client.
type Config struct {
	// ServerURL is the base HTTP URL of the server, e.g. http://localhost:8080.
	ServerURL string
	// UserID and DisplayName identify the caller.
	UserID      string
	DisplayName string
	// Channels to subscribe. Reconnects resubscribe exactly this set.
	Channels []string
	// Filter is an optional CEL expression applied server-side.
	Filter string

	// BackoffBase and BackoffMax bound the reconnect delay:
	// min(BackoffBase * 2^failures, BackoffMax).
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxAttempts caps consecutive failed connections before the client
	// gives up and parks in StateDisconnected until Reset.
	MaxAttempts int

	// OnEvent receives every delivered event. Events missed while
	// disconnected are gone; there is no replay.
	OnEvent func(Event)
	// OnStateChange observes lifecycle transitions.
	OnStateChange func(State)

	Dialer Dialer
	Logger logpkg.Logger
}

// Client maintains a subscription over an unreliable connection. It redials
// with capped exponential backoff, resubscribes to the same channel set, and
// parks after exhausting its retry budget until Reset is called.
type Client struct {
	cfg    Config
	logger logpkg.Logger

	mu       sync.Mutex
	state    State
	failures int
	parked   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New validates the config and returns a Client. Call Start to connect.
func New(cfg Config) *Client {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.Dialer == nil {
		cfg.Dialer = wsDialer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("client"))
	}
	return &Client{cfg: cfg, logger: logger, state: StateDisconnected}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// subscribeURL builds the ws endpoint with identity, channels, and filter.
func (c *Client) subscribeURL() string {
	base := c.cfg.ServerURL
	if strings.HasPrefix(base, "http") {
		base = "ws" + strings.TrimPrefix(base, "http")
	}
	q := url.Values{}
	q.Set("user_id", c.cfg.UserID)
	q.Set("user_name", c.cfg.DisplayName)
	if len(c.cfg.Channels) > 0 {
		q.Set("channels", strings.Join(c.cfg.Channels, ","))
	}
	if c.cfg.Filter != "" {
		q.Set("filter", c.cfg.Filter)
	}
	return base + "/v1/realtime/ws?" + q.Encode()
}

// nextDelay returns the backoff before the given consecutive failure count's
// redial: min(base * 2^failures, max).
func (c *Client) nextDelay(failures int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= c.cfg.BackoffMax {
			return c.cfg.BackoffMax
		}
	}
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// Start begins connecting and keeps the subscription alive until the context
// ends, Stop is called, or the retry budget is spent.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.parked = false
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx)
	}()
}

// Stop tears the connection down and waits for the run loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.setState(StateDisconnected)
}

// Reset clears a spent retry budget and reconnects. It is the explicit
// user-driven recovery path after the client parked in StateDisconnected;
// calling it while running or stopped is a no-op.
func (c *Client) Reset(ctx context.Context) {
	c.mu.Lock()
	if !c.parked {
		c.mu.Unlock()
		return
	}
	c.parked = false
	c.failures = 0
	c.cancel = nil
	c.mu.Unlock()
	c.Start(ctx)
}

func (c *Client) run(ctx context.Context) {
	for {
		c.setState(StateConnecting)
		conn, err := c.cfg.Dialer.Dial(ctx, c.subscribeURL())
		if err == nil {
			c.mu.Lock()
			c.failures = 0
			c.mu.Unlock()
			c.setState(StateConnected)
			// Close the connection when the context ends so the blocking
			// read unwinds.
			watch := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					_ = conn.Close()
				case <-watch:
				}
			}()
			err = c.readLoop(ctx, conn)
			close(watch)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}
		c.logger.Warn("connection lost", logpkg.Err(err))

		c.mu.Lock()
		c.failures++
		failures := c.failures
		c.mu.Unlock()
		if failures >= c.cfg.MaxAttempts {
			c.mu.Lock()
			c.parked = true
			c.cancel = nil
			c.mu.Unlock()
			c.logger.Error("retry budget spent; staying disconnected until reset",
				logpkg.Int("attempts", failures))
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateBackoff)
		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-time.After(c.nextDelay(failures - 1)):
		}
	}
}

// readLoop delivers events until the connection breaks or the context ends.
// Heartbeats are consumed as liveness and not surfaced.
func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ev.Type == "heartbeat" {
			continue
		}
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(ev)
		}
	}
}
