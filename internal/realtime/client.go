package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/atendai/zapagent/internal/domain"
	"github.com/coder/websocket"
)

// ErrMaxAttempts is returned when the reconnect attempt cap is exceeded;
// no further automatic attempts are made.
var ErrMaxAttempts = errors.New("realtime: max reconnection attempts reached")

// BackoffPolicy is the client-side reconnect policy: linear backoff with a
// fixed attempt cap. A successful connection resets the attempt counter.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

// DefaultBackoff matches the browser client: 2s base delay, 5 attempts.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{BaseDelay: 2 * time.Second, MaxAttempts: 5}
}

// Delay returns the retry delay scheduled after the given consecutive
// failure count: BaseDelay * attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

// Client is the browser-facing half of the realtime channel: it dials the
// event websocket, issues the start-auth command and dispatches incoming
// session events, reconnecting with linear backoff on transport errors.
type Client struct {
	URL     string
	Policy  BackoffPolicy
	OnEvent func(domain.Event)

	// test seams; nil selects the real implementations
	dial  func(ctx context.Context, url string) (*websocket.Conn, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// Run connects and relays events until ctx is cancelled, the attempt cap
// is exceeded (ErrMaxAttempts) or the dialed URL is fatally unreachable.
func (c *Client) Run(ctx context.Context, userID string) error {
	attempts := 0
	for {
		conn, err := c.doDial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempts++
			if attempts >= c.Policy.MaxAttempts {
				return ErrMaxAttempts
			}
			delay := c.Policy.Delay(attempts)
			slog.Warn("realtime: connection failed, retrying", "attempt", attempts, "delay", delay, "error", err)
			if err := c.doSleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		attempts = 0
		if err := c.session(ctx, conn, userID); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("realtime: session interrupted, reconnecting", "error", err)
		}
	}
}

// session issues start-auth and dispatches events until the connection
// drops.
func (c *Client) session(ctx context.Context, conn *websocket.Conn, userID string) error {
	defer conn.Close(websocket.StatusNormalClosure, "done")

	cmd, err := json.Marshal(Command{Type: "start-auth", UserID: userID})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, cmd); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("realtime: malformed event frame", "error", err)
			continue
		}
		if c.OnEvent != nil {
			c.OnEvent(ev)
		}
	}
}

func (c *Client) doDial(ctx context.Context) (*websocket.Conn, error) {
	if c.dial != nil {
		return c.dial(ctx, c.URL)
	}
	conn, _, err := websocket.Dial(ctx, c.URL, nil)
	return conn, err
}

func (c *Client) doSleep(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
