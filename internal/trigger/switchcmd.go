package trigger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/moonsidelab/lorabot/internal/onebot"
)

// Confirmation and denial texts for the switch sub-protocol.
const (
	msgSwitchOn       = "本群触发回复已开启"
	msgSwitchOff      = "本群触发回复已关闭"
	msgAlreadyOn      = "本群触发回复处于开启状态"
	msgListedLocked   = "该群在固定名单内，无法关闭触发"
	msgUnlistedClosed = "未开放非名单群的触发启用"
	msgNeedAdmin      = "仅群主或管理员可以操作触发开关"
	msgPrivateOn      = "已恢复私聊触发回复"
	msgPrivateOff     = "已关闭私聊触发回复，发送开启指令可恢复"
)

// buildSwitchPattern compiles the whole-message switch phrase:
// call-name, the literal "respond", then "on" or "off",
// case-insensitive.
func buildSwitchPattern(names []string) *regexp.Regexp {
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)^\s*(?:` + strings.Join(quoted, "|") + `)[\s,，]*respond\s*(on|off)\s*$`)
}

// handleSwitch intercepts the respond on/off command. Returns true
// when the message was the switch phrase, whether or not the change
// was permitted; such a message never falls through to trigger
// matching. Persistence happens before the confirmation is sent, so a
// crash in between never leaves disk ahead of what was acknowledged.
func (e *Engine) handleSwitch(ctx context.Context, evt *onebot.Event) (bool, error) {
	if e.switchRe == nil {
		return false, nil
	}
	m := e.switchRe.FindStringSubmatch(evt.PlainText())
	if m == nil {
		return false, nil
	}
	on := strings.EqualFold(m[1], "on")
	userID := evt.UserID.String()

	if evt.IsPrivateMessage() {
		return true, e.switchPrivate(ctx, userID, on)
	}
	if evt.IsGroupMessage() {
		return true, e.switchGroup(ctx, evt, userID, on)
	}
	return false, nil
}

// switchGroup applies group semantics: elevated role required, listed
// groups cannot be turned off, unlisted groups need the global flag.
func (e *Engine) switchGroup(ctx context.Context, evt *onebot.Event, userID string, on bool) error {
	groupID := evt.GroupID.String()

	role := evt.Sender.Role
	elevated := role == "owner" || role == "admin" || (e.cfg.SuperUserID != "" && userID == e.cfg.SuperUserID)
	if !elevated {
		slog.Info("trigger: switch denied", "group_id", groupID, "user_id", userID, "role", role)
		_, err := e.send.SendGroupMessage(ctx, groupID, msgNeedAdmin)
		return err
	}

	if e.groupAllow[groupID] {
		reply := msgAlreadyOn
		if !on {
			reply = msgListedLocked
		}
		_, err := e.send.SendGroupMessage(ctx, groupID, reply)
		return err
	}

	if on && !e.cfg.AllowUnlistedGroups {
		_, err := e.send.SendGroupMessage(ctx, groupID, msgUnlistedClosed)
		return err
	}

	if err := e.toggles.SetGroupEnabled(groupID, on); err != nil {
		// State is applied in memory; disk catches up on the next write.
		slog.Error("trigger: persist group toggle failed", "group_id", groupID, "error", err)
	}
	slog.Info("trigger: group toggle", "group_id", groupID, "user_id", userID, "on", on)
	e.record("switch_group", groupID, userID, onOff(on))

	reply := msgSwitchOff
	if on {
		reply = msgSwitchOn
	}
	_, err := e.send.SendGroupMessage(ctx, groupID, reply)
	return err
}

// switchPrivate applies private semantics: no permission check, off
// blocks the sender, on unblocks.
func (e *Engine) switchPrivate(ctx context.Context, userID string, on bool) error {
	if err := e.toggles.SetDMBlocked(userID, !on); err != nil {
		slog.Error("trigger: persist dm toggle failed", "user_id", userID, "error", err)
	}
	slog.Info("trigger: dm toggle", "user_id", userID, "on", on)
	e.record("switch_private", "", userID, onOff(on))

	reply := msgPrivateOff
	if on {
		reply = msgPrivateOn
	}
	_, err := e.send.SendPrivateMessage(ctx, userID, reply)
	return err
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
