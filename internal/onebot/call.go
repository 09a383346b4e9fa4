package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Sentinel errors surfaced by Call.
var (
	// ErrTimeout means no response tagged with the call's token arrived
	// within the deadline. The connection itself stays up.
	ErrTimeout = errors.New("onebot: call timed out")
	// ErrNotConnected means no gateway connection is currently bound.
	ErrNotConnected = errors.New("onebot: not connected")
)

// Response is an action response frame from the gateway.
type Response struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
}

// DataField extracts a field of the response data object as a string.
func (r *Response) DataField(key string) string {
	if len(r.Data) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(r.Data, &m); err != nil {
		return ""
	}
	return anyToString(m[key])
}

// actionFrame is the outbound wire shape of one action.
type actionFrame struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// Caller pairs outgoing actions with their eventual responses using a
// per-call echo token. Concurrent calls are independent; responses are
// matched by token, not arrival order. Safe for concurrent use.
type Caller struct {
	timeout time.Duration
	limiter *rate.Limiter

	mu      sync.Mutex
	conn    *Conn
	pending map[string]chan *Response
}

// NewCaller creates a Caller. ratePerSec bounds outbound actions
// across all concurrent senders; zero disables pacing.
func NewCaller(timeout time.Duration, ratePerSec float64, burst int) *Caller {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	if burst < 1 {
		burst = 1
	}
	return &Caller{
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		pending: make(map[string]chan *Response),
	}
}

// bind attaches (or detaches, with nil) the live connection. Called by
// the supervisor on connect and disconnect.
func (c *Caller) bind(conn *Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// PendingCount returns the number of in-flight calls.
func (c *Caller) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Call sends one action and waits for its correlated response.
// Fails with ErrTimeout when no response arrives in time and with a
// transport error when the send itself fails. The waiter is removed on
// every exit path.
func (c *Caller) Call(ctx context.Context, action string, params any) (*Response, error) {
	echo := action + ":" + uuid.NewString()
	ch := make(chan *Response, 1)

	c.mu.Lock()
	conn := c.conn
	c.pending[echo] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
	}()

	if conn == nil {
		return nil, ErrNotConnected
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := conn.Send(ctx, actionFrame{Action: action, Params: params, Echo: echo}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		if resp.Status == "failed" {
			return resp, fmt.Errorf("onebot: action %s failed: retcode=%d", action, resp.RetCode)
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: action=%s", ErrTimeout, action)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deliver hands a response to the waiter registered for its token.
// No-op when no waiter exists, e.g. after the call already timed out.
func (c *Caller) deliver(resp *Response) {
	c.mu.Lock()
	ch, ok := c.pending[resp.Echo]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default: // waiter already satisfied
	}
}
