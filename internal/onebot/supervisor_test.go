package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newGatewayServer starts a fake OneBot gateway. handle drives one
// accepted connection and returns when the connection should close.
func newGatewayServer(t *testing.T, handle func(c *websocket.Conn)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		handle(c)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoActions answers every action with an ok response carrying a
// message id.
func echoActions(c *websocket.Conn) {
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Echo string `json:"echo"`
		}
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		resp, _ := json.Marshal(map[string]any{
			"status":  "ok",
			"retcode": 0,
			"data":    map[string]any{"message_id": 7001},
			"echo":    frame.Echo,
		})
		if c.WriteMessage(websocket.TextMessage, resp) != nil {
			return
		}
	}
}

func startSupervisor(t *testing.T, url string, caller *Caller) *Supervisor {
	t.Helper()
	sup := NewSupervisor(url, 30*time.Millisecond, caller)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("supervisor did not stop")
		}
	})
	return sup
}

func connected(c *Caller) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func waitConnected(t *testing.T, caller *Caller) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if connected(caller) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("caller never connected")
}

func TestCallRoundtrip(t *testing.T) {
	url := newGatewayServer(t, echoActions)
	caller := NewCaller(2*time.Second, 0, 1)
	startSupervisor(t, url, caller)
	waitConnected(t, caller)

	id, err := caller.SendGroupMessage(context.Background(), "123", "hello")
	if err != nil {
		t.Fatalf("SendGroupMessage: %v", err)
	}
	if id != "7001" {
		t.Errorf("message id = %q, want 7001", id)
	}
	if n := caller.PendingCount(); n != 0 {
		t.Errorf("pending after success = %d", n)
	}
}

func TestCallTimeoutLeavesNoWaiter(t *testing.T) {
	// Gateway that swallows every action.
	url := newGatewayServer(t, func(c *websocket.Conn) {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	caller := NewCaller(40*time.Millisecond, 0, 1)
	startSupervisor(t, url, caller)
	waitConnected(t, caller)

	for i := 0; i < 20; i++ {
		_, err := caller.Call(context.Background(), "send_group_msg", nil)
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("call %d: err = %v, want ErrTimeout", i, err)
		}
	}
	if n := caller.PendingCount(); n != 0 {
		t.Errorf("pending after %d timeouts = %d, want 0", 20, n)
	}
}

func TestCallNotConnected(t *testing.T) {
	caller := NewCaller(time.Second, 0, 1)
	_, err := caller.Call(context.Background(), "send_group_msg", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if n := caller.PendingCount(); n != 0 {
		t.Errorf("pending = %d, want 0", n)
	}
}

func TestEventOrderPreserved(t *testing.T) {
	url := newGatewayServer(t, func(c *websocket.Conn) {
		for i := 1; i <= 3; i++ {
			evt, _ := json.Marshal(map[string]any{
				"post_type": "message", "message_type": "group",
				"group_id": 1, "user_id": i,
			})
			if c.WriteMessage(websocket.TextMessage, evt) != nil {
				return
			}
		}
		// hold the connection open
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	caller := NewCaller(time.Second, 0, 1)
	sup := startSupervisor(t, url, caller)

	for i := 1; i <= 3; i++ {
		select {
		case evt := <-sup.Events():
			if evt.UserID.String() != strconv.Itoa(i) {
				t.Errorf("event %d: user_id = %s", i, evt.UserID.String())
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestMalformedAndUnsolicitedFramesDropped(t *testing.T) {
	url := newGatewayServer(t, func(c *websocket.Conn) {
		c.WriteMessage(websocket.TextMessage, []byte("{not json"))
		// response with no registered waiter
		c.WriteMessage(websocket.TextMessage, []byte(`{"status":"ok","retcode":0,"echo":"stale:1"}`))
		evt, _ := json.Marshal(map[string]any{
			"post_type": "message", "message_type": "group",
			"group_id": 1, "user_id": 9,
		})
		c.WriteMessage(websocket.TextMessage, evt)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	caller := NewCaller(time.Second, 0, 1)
	sup := startSupervisor(t, url, caller)

	select {
	case evt := <-sup.Events():
		if evt.UserID.String() != "9" {
			t.Errorf("user_id = %s, want 9", evt.UserID.String())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event after malformed frames never arrived")
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	var conns atomic.Int32
	url := newGatewayServer(t, func(c *websocket.Conn) {
		n := conns.Add(1)
		evt, _ := json.Marshal(map[string]any{
			"post_type": "message", "message_type": "group",
			"group_id": 1, "user_id": 100 + n,
		})
		c.WriteMessage(websocket.TextMessage, evt)
		if n == 1 {
			return // drop the first connection immediately
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	})
	caller := NewCaller(time.Second, 0, 1)
	sup := startSupervisor(t, url, caller)

	want := []string{"101", "102"}
	for i, w := range want {
		select {
		case evt := <-sup.Events():
			if evt.UserID.String() != w {
				t.Errorf("event %d: user_id = %s, want %s", i, evt.UserID.String(), w)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	if conns.Load() < 2 {
		t.Errorf("connection count = %d, want >= 2", conns.Load())
	}
}
