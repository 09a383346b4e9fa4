package onebot

import (
	"context"
	"log/slog"
	"time"
)

const (
	dialTimeout    = 15 * time.Second
	eventQueueSize = 256
)

// Supervisor owns the connect/reconnect lifecycle of the gateway
// connection. On each successful dial it binds the connection to the
// Caller and runs the frame router; on any transport failure it tears
// down, waits a fixed backoff, and dials again. The event queue
// persists across reconnects, so events received before a disconnect
// are still delivered.
type Supervisor struct {
	url     string
	backoff time.Duration
	caller  *Caller
	events  chan Event
}

// NewSupervisor creates a supervisor for the given gateway URL.
// backoff is the fixed retry delay between connection attempts.
func NewSupervisor(url string, backoff time.Duration, caller *Caller) *Supervisor {
	return &Supervisor{
		url:     url,
		backoff: backoff,
		caller:  caller,
		events:  make(chan Event, eventQueueSize),
	}
}

// Events returns the ordered inbound event queue.
func (s *Supervisor) Events() <-chan Event { return s.events }

// Run drives the connection lifecycle until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := Dial(dialCtx, s.url)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("onebot: dial failed", "url", s.url, "error", err, "retry_in", s.backoff)
			if !sleep(ctx, s.backoff) {
				return ctx.Err()
			}
			continue
		}

		slog.Info("onebot: connected", "url", s.url)
		s.caller.bind(conn)
		err = runRouter(ctx, conn, s.caller, s.events)
		s.caller.bind(nil)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("onebot: connection lost", "close", closeReason(err), "retry_in", s.backoff)
		if !sleep(ctx, s.backoff) {
			return ctx.Err()
		}
	}
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
