// Package welcome batches near-simultaneous group joins into one
// scripted greeting. Each join resets a per-group delay timer; when
// the delay elapses without another arrival, the full welcome sequence
// is sent once and the batch is cleared.
package welcome

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/moonsidelab/lorabot/internal/content"
	"github.com/moonsidelab/lorabot/internal/onebot"
)

// Messenger is the outbound surface the scheduler needs.
type Messenger interface {
	SendGroupMessage(ctx context.Context, groupID, text string) (string, error)
	SendGroupSegments(ctx context.Context, groupID string, segments []onebot.OutSegment) (string, error)
	SendGroupForward(ctx context.Context, groupID string, texts []string, senderID, senderName string) (string, error)
}

// Config controls greeting pacing and attribution.
type Config struct {
	Delay             time.Duration // debounce window after the last join
	Gap               time.Duration // pause between scripted sends
	LogGroup          string        // optional group for operational reports
	ForwardSenderID   string        // fallback uin for forward nodes
	ForwardSenderName string        // display name on forward nodes
}

// pendingGroup tracks unwelcomed arrivals for one group. The
// generation counter guards the cancel-and-replace timer pattern: a
// fire whose generation no longer matches was superseded and must not
// act.
type pendingGroup struct {
	users []string
	gen   uint64
	timer *time.Timer
}

// Scheduler maintains at most one live delay timer per group.
type Scheduler struct {
	cfg      Config
	send     Messenger
	snapshot func() *content.Snapshot
	selfID   func() string

	mu      sync.Mutex
	pending map[string]*pendingGroup
}

// NewScheduler creates a scheduler. snapshot yields the current
// content snapshot; selfID yields the agent's own id once captured.
func NewScheduler(cfg Config, send Messenger, snapshot func() *content.Snapshot, selfID func() string) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		send:     send,
		snapshot: snapshot,
		selfID:   selfID,
		pending:  make(map[string]*pendingGroup),
	}
}

// HandleJoin records an arrival and restarts the group's delay timer.
func (s *Scheduler) HandleJoin(ctx context.Context, groupID, userID string) {
	s.mu.Lock()
	pg := s.pending[groupID]
	if pg == nil {
		pg = &pendingGroup{}
		s.pending[groupID] = pg
	}
	if !slices.Contains(pg.users, userID) {
		pg.users = append(pg.users, userID)
	}
	if pg.timer != nil {
		pg.timer.Stop()
		slog.Info("welcome: timer reset", "group_id", groupID)
	}
	pg.gen++
	gen := pg.gen
	pg.timer = time.AfterFunc(s.cfg.Delay, func() {
		s.fire(ctx, groupID, gen)
	})
	waiting := len(pg.users)
	s.mu.Unlock()

	slog.Info("welcome: join recorded", "group_id", groupID, "user_id", userID, "waiting", waiting, "delay", s.cfg.Delay)
	s.report(ctx, fmt.Sprintf("【日志】用户 %s 加入群 %s，定时器重置", userID, groupID))
}

// ForceFire replaces the group's batch with a single test user and
// runs the greeting immediately. Operator verification path.
func (s *Scheduler) ForceFire(ctx context.Context, groupID, userID string) {
	s.mu.Lock()
	pg := s.pending[groupID]
	gen := uint64(1)
	if pg != nil {
		if pg.timer != nil {
			pg.timer.Stop()
		}
		gen = pg.gen + 1
	}
	s.pending[groupID] = &pendingGroup{users: []string{userID}, gen: gen}
	s.mu.Unlock()

	slog.Info("welcome: test fire", "group_id", groupID, "user_id", userID)
	s.report(ctx, fmt.Sprintf("【日志】收到测试迎新指令，立即执行：%s", groupID))
	s.fire(ctx, groupID, gen)
}

// PendingUsers returns the current batch for a group, in arrival order.
func (s *Scheduler) PendingUsers(groupID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg := s.pending[groupID]
	if pg == nil {
		return nil
	}
	return slices.Clone(pg.users)
}

// fire runs the scripted greeting for one group. A stale generation
// means the timer was superseded by a later join; it must not act.
// On a send failure the batch is kept so the next arrival reruns the
// sequence from the top.
func (s *Scheduler) fire(ctx context.Context, groupID string, gen uint64) {
	s.mu.Lock()
	pg := s.pending[groupID]
	if pg == nil || pg.gen != gen {
		s.mu.Unlock()
		return
	}
	users := slices.Clone(pg.users)
	s.mu.Unlock()

	if len(users) == 0 {
		// Should not happen under correct cancellation; clear and move on.
		slog.Warn("welcome: fire with empty batch", "group_id", groupID)
		s.report(ctx, fmt.Sprintf("【日志】触发失败：新人列表为空，群号：%s", groupID))
		s.clear(groupID, gen)
		return
	}

	slog.Info("welcome: firing", "group_id", groupID, "users", users)
	s.report(ctx, fmt.Sprintf("【日志】开始发送欢迎消息：%s", groupID))

	snap := s.snapshot()

	for _, entry := range snap.WelcomePlain {
		if entry.Body == "" {
			continue
		}
		if _, err := s.send.SendGroupMessage(ctx, groupID, entry.Body); err != nil {
			slog.Warn("welcome: plain send failed", "group_id", groupID, "entry", entry.Name, "error", err)
			return
		}
		if !sleep(ctx, s.cfg.Gap) {
			return
		}
	}

	for _, entry := range snap.WelcomePacks {
		texts := nonEmpty(entry.Parts)
		if len(texts) == 0 {
			continue
		}
		if _, err := s.send.SendGroupForward(ctx, groupID, texts, s.forwardSender(), s.cfg.ForwardSenderName); err != nil {
			slog.Warn("welcome: forward send failed", "group_id", groupID, "entry", entry.Name, "error", err)
			return
		}
		if !sleep(ctx, s.cfg.Gap) {
			return
		}
	}

	segments := make([]onebot.OutSegment, 0, len(users))
	for _, u := range users {
		segments = append(segments, onebot.At(u))
	}
	if _, err := s.send.SendGroupSegments(ctx, groupID, segments); err != nil {
		slog.Warn("welcome: mention send failed", "group_id", groupID, "error", err)
		return
	}

	s.clear(groupID, gen)
	slog.Info("welcome: done", "group_id", groupID, "users", users)
}

// clear removes the group's batch unless a later join superseded it.
func (s *Scheduler) clear(groupID string, gen uint64) {
	s.mu.Lock()
	if pg := s.pending[groupID]; pg != nil && pg.gen == gen {
		delete(s.pending, groupID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) forwardSender() string {
	if id := s.selfID(); id != "" {
		return id
	}
	return s.cfg.ForwardSenderID
}

func (s *Scheduler) report(ctx context.Context, text string) {
	if s.cfg.LogGroup == "" {
		return
	}
	if _, err := s.send.SendGroupMessage(ctx, s.cfg.LogGroup, text); err != nil {
		slog.Debug("welcome: log-group report failed", "error", err)
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
