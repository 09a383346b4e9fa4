// Package dispatcher runs the orchestration loop: it pops inbound
// events off the supervisor's queue and routes each one to the
// welcome scheduler, the trigger engine, or drops it. No event is
// allowed to terminate the loop.
package dispatcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/moonsidelab/lorabot/internal/audit"
	"github.com/moonsidelab/lorabot/internal/onebot"
	"github.com/moonsidelab/lorabot/internal/trigger"
	"github.com/moonsidelab/lorabot/internal/welcome"
)

// Identity holds the agent's own id, captured exactly once from the
// first event that carries it and retained across reconnects.
type Identity struct {
	mu sync.Mutex
	id string
}

// Get returns the captured id, or "" before capture.
func (i *Identity) Get() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id
}

// capture stores id on first sight, reporting whether it was new.
func (i *Identity) capture(id string) bool {
	if id == "" {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.id != "" {
		return false
	}
	i.id = id
	return true
}

// Config is the routing configuration.
type Config struct {
	WelcomeEnabled bool
	WelcomeGroups  []string
	TestCommand    string // super-user phrase that force-fires the greeting
	SuperUserID    string
}

// Dispatcher consumes the event queue and routes events.
type Dispatcher struct {
	cfg           Config
	events        <-chan onebot.Event
	identity      *Identity
	welcome       *welcome.Scheduler
	trigger       *trigger.Engine
	audit         *audit.Log
	welcomeGroups map[string]bool
}

// New creates a dispatcher reading from events.
func New(cfg Config, events <-chan onebot.Event, identity *Identity, sch *welcome.Scheduler, eng *trigger.Engine, trail *audit.Log) *Dispatcher {
	groups := make(map[string]bool, len(cfg.WelcomeGroups))
	for _, g := range cfg.WelcomeGroups {
		groups[g] = true
	}
	return &Dispatcher{
		cfg:           cfg,
		events:        events,
		identity:      identity,
		welcome:       sch,
		trigger:       eng,
		audit:         trail,
		welcomeGroups: groups,
	}
}

// Run processes events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-d.events:
			d.handle(ctx, &evt)
		}
	}
}

// handle routes one event. A panic or error in a handler is logged
// and the loop proceeds to the next event.
func (d *Dispatcher) handle(ctx context.Context, evt *onebot.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatcher: event handler panic", "panic", r, "post_type", evt.PostType)
		}
	}()

	if d.identity.capture(evt.SelfID.String()) {
		slog.Info("dispatcher: captured self id", "self_id", evt.SelfID.String())
	}

	switch {
	case evt.IsGroupJoin():
		d.handleJoin(ctx, evt)
	case evt.IsGroupMessage():
		d.handleGroupMessage(ctx, evt)
	case evt.IsPrivateMessage():
		d.handleMessage(ctx, evt)
	}
}

func (d *Dispatcher) handleJoin(ctx context.Context, evt *onebot.Event) {
	groupID := evt.GroupID.String()
	userID := evt.UserID.String()
	if !d.cfg.WelcomeEnabled || !d.welcomeGroups[groupID] {
		slog.Info("dispatcher: join ignored", "group_id", groupID, "user_id", userID)
		return
	}
	d.audit.Record("join", groupID, userID, "")
	d.welcome.HandleJoin(ctx, groupID, userID)
}

func (d *Dispatcher) handleGroupMessage(ctx context.Context, evt *onebot.Event) {
	groupID := evt.GroupID.String()
	userID := evt.UserID.String()

	if d.isTestCommand(evt, groupID, userID) {
		d.audit.Record("welcome_test", groupID, userID, "")
		d.welcome.ForceFire(ctx, groupID, userID)
		return
	}
	d.handleMessage(ctx, evt)
}

func (d *Dispatcher) handleMessage(ctx context.Context, evt *onebot.Event) {
	if err := d.trigger.HandleMessage(ctx, evt); err != nil {
		slog.Warn("dispatcher: trigger handling failed",
			"group_id", evt.GroupID.String(), "user_id", evt.UserID.String(), "error", err)
	}
}

// isTestCommand matches the operator phrase that force-fires the
// welcome sequence: super-user only, welcomed groups only, exact text.
func (d *Dispatcher) isTestCommand(evt *onebot.Event, groupID, userID string) bool {
	if d.cfg.TestCommand == "" || d.cfg.SuperUserID == "" {
		return false
	}
	if !d.cfg.WelcomeEnabled || !d.welcomeGroups[groupID] || userID != d.cfg.SuperUserID {
		return false
	}
	raw := strings.TrimSpace(evt.RawMessage)
	if raw == "" {
		raw = evt.PlainText()
	}
	return raw == d.cfg.TestCommand
}
