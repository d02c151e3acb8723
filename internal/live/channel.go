// Package live delivers job status snapshots over a push connection with a
// polling fallback.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jfrid/logsleuth/pkg/models"
)

// Defaults for channel behavior; overridable per job kind through Config.
const (
	DefaultReconnectDelay    = 2 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultMaxPushFailures   = 5
	DefaultPollInterval      = 2 * time.Second
)

// Poller fetches the current job snapshot over HTTP. Used once the push
// transport has been abandoned.
type Poller func(ctx context.Context) (*models.StatusSnapshot, error)

// Config tunes one channel instance.
type Config struct {
	// URL is the websocket endpoint for the job.
	URL string
	// ReconnectDelay is the initial wait before re-dialing a dropped push
	// connection. Subsequent waits back off exponentially.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff.
	MaxReconnectDelay time.Duration
	// MaxPushFailures is the number of consecutive failed dials after which
	// the channel abandons push and falls back to polling.
	MaxPushFailures int
	// PollInterval is the fallback polling period.
	PollInterval time.Duration
	// Logger is optional; nil discards.
	Logger *slog.Logger
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = DefaultReconnectDelay
	}
	if out.MaxReconnectDelay <= 0 {
		out.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if out.MaxPushFailures <= 0 {
		out.MaxPushFailures = DefaultMaxPushFailures
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	return out
}

// Channel maintains at most one active transport for one job: a websocket
// while push is healthy, a poll ticker once push has been abandoned. It
// stops on its own when a terminal snapshot goes through, and immediately
// when closed.
type Channel struct {
	cfg    Config
	apply  func(models.StatusSnapshot)
	poll   Poller
	cancel context.CancelFunc
	closed atomic.Bool
	done   chan struct{}
}

// Open starts the channel's transport loop. Every non-keepalive snapshot is
// handed to apply in receipt order.
func Open(cfg Config, apply func(models.StatusSnapshot), poll Poller) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:    cfg.withDefaults(),
		apply:  apply,
		poll:   poll,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(ctx)
	return c
}

// Close stops both the push connection and any pending poll timer. It does
// not block; deliveries racing the close are dropped by the closed flag
// here and fenced by the job tracker's generation check.
func (c *Channel) Close() {
	c.closed.Store(true)
	c.cancel()
}

// Done is closed when the transport loop has fully exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	failures := 0
	delay := c.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			failures++
			c.cfg.Logger.Debug("push dial failed", "url", c.cfg.URL, "failures", failures, "error", err)
			if failures >= c.cfg.MaxPushFailures {
				c.cfg.Logger.Info("push transport abandoned, falling back to polling", "url", c.cfg.URL)
				c.pollLoop(ctx)
				return
			}
			if !sleep(ctx, delay) {
				return
			}
			delay = nextDelay(delay, c.cfg.MaxReconnectDelay)
			continue
		}

		failures = 0
		delay = c.cfg.ReconnectDelay

		terminal := c.readLoop(ctx, conn)
		if terminal || ctx.Err() != nil {
			return
		}

		// Connection dropped mid-job: reconnect after the delay.
		if !sleep(ctx, delay) {
			return
		}
		delay = nextDelay(delay, c.cfg.MaxReconnectDelay)
	}
}

// readLoop consumes one websocket connection until it drops or a terminal
// snapshot arrives. Returns true when the job reached a terminal state.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	defer conn.Close()

	// Unblock the blocking read when the channel is closed.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}

		var snap models.StatusSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			c.cfg.Logger.Debug("dropping malformed push message", "error", err)
			continue
		}
		if snap.Keepalive() {
			continue
		}

		c.deliver(snap)
		if snap.Status.Terminal() {
			return true
		}
	}
}

// pollLoop issues a status request on a fixed interval until the job
// reaches a terminal state or the channel is closed.
func (c *Channel) pollLoop(ctx context.Context) {
	if c.poll == nil {
		return
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap, err := c.poll(ctx)
		if err != nil {
			c.cfg.Logger.Debug("status poll failed", "error", err)
			continue
		}
		if snap == nil || snap.Keepalive() {
			continue
		}

		c.deliver(*snap)
		if snap.Status.Terminal() {
			return
		}
	}
}

func (c *Channel) deliver(snap models.StatusSnapshot) {
	if c.closed.Load() {
		return
	}
	c.apply(snap)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
