// Package trigger answers free-text messages that address the agent
// and contain a configured keyword. A message passes four stages:
// entry gate (is the agent addressed), permission gate (is this group
// or correspondent allowed), cooldown, then keyword resolution with
// longest-match-wins priority.
package trigger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/moonsidelab/lorabot/internal/content"
	"github.com/moonsidelab/lorabot/internal/onebot"
	"github.com/moonsidelab/lorabot/internal/togglestate"
)

// Messenger is the outbound surface the engine needs.
type Messenger interface {
	SendGroupMessage(ctx context.Context, groupID, text string) (string, error)
	SendGroupSegments(ctx context.Context, groupID string, segments []onebot.OutSegment) (string, error)
	SendGroupForward(ctx context.Context, groupID string, texts []string, senderID, senderName string) (string, error)
	SendPrivateMessage(ctx context.Context, userID, text string) (string, error)
	SendPrivateForward(ctx context.Context, userID string, texts []string, senderID, senderName string) (string, error)
}

// Recorder receives decision records for the audit trail. May be nil.
type Recorder interface {
	Record(kind, groupID, userID, detail string)
}

// Config controls gating, pacing and delivery.
type Config struct {
	Names               []string // call-names that address the agent
	SuperUserID         string   // exempt from cooldown and role checks
	Groups              []string // static group allow list
	AllowUnlistedGroups bool     // permit runtime-enabled groups
	PrivateEnabled      bool
	Cooldown            time.Duration
	MentionGate         bool // require the agent to be addressed
	FollowUpDelay       time.Duration
	FollowUpText        string
	PrivateHint         string
	ForwardSenderID     string
	ForwardSenderName   string
}

type cooldownKey struct {
	groupID string
	userID  string
}

// Engine is the trigger decision state machine. Safe for concurrent
// use; in practice it runs on the dispatcher goroutine.
type Engine struct {
	cfg        Config
	send       Messenger
	toggles    *togglestate.Store
	snapshot   func() *content.Snapshot
	selfID     func() string
	recorder   Recorder
	groupAllow map[string]bool
	switchRe   *regexp.Regexp

	mu       sync.Mutex
	cooldown map[cooldownKey]time.Time
	now      func() time.Time
}

// NewEngine creates an engine. snapshot yields the current content
// snapshot; selfID yields the agent's own id once captured.
func NewEngine(cfg Config, send Messenger, toggles *togglestate.Store, snapshot func() *content.Snapshot, selfID func() string) *Engine {
	allow := make(map[string]bool, len(cfg.Groups))
	for _, g := range cfg.Groups {
		allow[g] = true
	}
	return &Engine{
		cfg:        cfg,
		send:       send,
		toggles:    toggles,
		snapshot:   snapshot,
		selfID:     selfID,
		groupAllow: allow,
		switchRe:   buildSwitchPattern(cfg.Names),
		cooldown:   make(map[cooldownKey]time.Time),
		now:        time.Now,
	}
}

// SetRecorder attaches an audit recorder.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// HandleMessage processes one inbound text message. The switch
// sub-protocol is intercepted before trigger matching; everything
// else flows through the gate/cooldown/resolution pipeline. Silent
// rejections (gating, cooldown, no match) return nil.
func (e *Engine) HandleMessage(ctx context.Context, evt *onebot.Event) error {
	if handled, err := e.handleSwitch(ctx, evt); handled {
		return err
	}

	isGroup := evt.IsGroupMessage()
	userID := evt.UserID.String()
	groupID := evt.GroupID.String()
	text := evt.PlainText()

	if !e.addressed(evt, text) {
		return nil
	}
	if !e.permitted(isGroup, groupID, userID) {
		return nil
	}
	if !e.passCooldown(isGroup, groupID, userID) {
		slog.Debug("trigger: cooldown rejected", "group_id", groupID, "user_id", userID)
		return nil
	}

	clean := normalize(text)
	snap := e.snapshot()
	single, singleKW := bestMatch(snap.TriggerSingles, clean)
	grouped, groupedKW := bestMatch(snap.TriggerGroups, clean)

	switch {
	case grouped != nil && runeLen(groupedKW) >= runeLen(singleKW):
		slog.Info("trigger: grouped match", "group_id", groupID, "user_id", userID, "keyword", groupedKW, "entry", grouped.Name)
		e.record("trigger_grouped", groupID, userID, groupedKW)
		return e.deliverGrouped(ctx, evt, isGroup, groupID, userID, grouped)
	case single != nil:
		slog.Info("trigger: single match", "group_id", groupID, "user_id", userID, "keyword", singleKW, "entry", single.Name)
		e.record("trigger_single", groupID, userID, singleKW)
		return e.deliverSingle(ctx, isGroup, groupID, userID, single)
	default:
		slog.Debug("trigger: no match", "group_id", groupID, "user_id", userID, "clean", clean)
		return nil
	}
}

// addressed implements the entry gate: an at-mention of the agent, a
// reply segment, or a call-name substring. With the gate disabled
// every message is a candidate.
func (e *Engine) addressed(evt *onebot.Event, text string) bool {
	if !e.cfg.MentionGate {
		return true
	}
	if evt.Mentions(e.selfID()) || evt.HasReply() {
		return true
	}
	lower := strings.ToLower(text)
	for _, name := range e.cfg.Names {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// permitted implements the permission gate.
func (e *Engine) permitted(isGroup bool, groupID, userID string) bool {
	if isGroup {
		if e.groupAllow[groupID] {
			return true
		}
		return e.cfg.AllowUnlistedGroups && e.toggles.GroupEnabled(groupID)
	}
	return e.cfg.PrivateEnabled && !e.toggles.DMBlocked(userID)
}

// passCooldown enforces the per-(group,user) threshold. The timestamp
// is stamped on every accepted candidate, matching or not, so
// repeated probing still consumes the slot. The super-user is exempt.
func (e *Engine) passCooldown(isGroup bool, groupID, userID string) bool {
	if userID == e.cfg.SuperUserID && e.cfg.SuperUserID != "" {
		return true
	}
	key := cooldownKey{groupID: groupID, userID: userID}
	if !isGroup {
		key.groupID = userID
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if last, ok := e.cooldown[key]; ok && now.Sub(last) < e.cfg.Cooldown {
		return false
	}
	e.cooldown[key] = now
	return true
}

func (e *Engine) deliverSingle(ctx context.Context, isGroup bool, groupID, userID string, entry *content.Entry) error {
	if entry.Body == "" {
		return nil
	}
	var err error
	if isGroup {
		_, err = e.send.SendGroupMessage(ctx, groupID, entry.Body)
	} else {
		_, err = e.send.SendPrivateMessage(ctx, userID, entry.Body)
	}
	return err
}

// deliverGrouped sends the entry's parts as one aggregated forward.
// In a group the forward is followed, after a short delay, by a
// reply-anchored message re-mentioning every user mentioned in the
// triggering message. In private there is no mention concept, so a
// plain hint goes out instead.
func (e *Engine) deliverGrouped(ctx context.Context, evt *onebot.Event, isGroup bool, groupID, userID string, entry *content.Entry) error {
	texts := nonEmpty(entry.Parts)
	if len(texts) == 0 {
		return nil
	}

	if !isGroup {
		if _, err := e.send.SendPrivateForward(ctx, userID, texts, e.forwardSender(), e.cfg.ForwardSenderName); err != nil {
			return err
		}
		if !sleep(ctx, e.cfg.FollowUpDelay) {
			return ctx.Err()
		}
		_, err := e.send.SendPrivateMessage(ctx, userID, e.cfg.PrivateHint)
		return err
	}

	fwdID, err := e.send.SendGroupForward(ctx, groupID, texts, e.forwardSender(), e.cfg.ForwardSenderName)
	if err != nil {
		return err
	}
	if !sleep(ctx, e.cfg.FollowUpDelay) {
		return ctx.Err()
	}

	segments := make([]onebot.OutSegment, 0, 4)
	if fwdID != "" {
		segments = append(segments, onebot.Reply(fwdID))
	}
	segments = append(segments, onebot.Text(e.cfg.FollowUpText))
	for _, qq := range evt.MentionedUsers(e.selfID()) {
		segments = append(segments, onebot.At(qq))
	}
	_, err = e.send.SendGroupSegments(ctx, groupID, segments)
	return err
}

func (e *Engine) forwardSender() string {
	if id := e.selfID(); id != "" {
		return id
	}
	return e.cfg.ForwardSenderID
}

func (e *Engine) record(kind, groupID, userID, detail string) {
	if e.recorder != nil {
		e.recorder.Record(kind, groupID, userID, detail)
	}
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
