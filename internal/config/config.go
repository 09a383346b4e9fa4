// Package config holds the full runtime configuration for lorabot.
// Config files are JSON5 so they can carry comments and trailing commas;
// environment variables overlay file values.
package config

import "time"

// Config is the root configuration object.
type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	Bot     BotConfig     `json:"bot"`
	Welcome WelcomeConfig `json:"welcome"`
	Trigger TriggerConfig `json:"trigger"`
	Content ContentConfig `json:"content"`
	State   StateConfig   `json:"state"`
}

// GatewayConfig describes the OneBot v11 gateway connection.
type GatewayConfig struct {
	URL                string  `json:"url"`                  // ws:// endpoint of the gateway
	CallTimeoutSeconds float64 `json:"call_timeout_seconds"` // per-action response wait
	ReconnectSeconds   float64 `json:"reconnect_seconds"`    // fixed backoff between reconnect attempts
	SendRatePerSecond  float64 `json:"send_rate_per_second"` // outbound action pacing, 0 = unlimited
	SendBurst          int     `json:"send_burst"`
}

// BotConfig describes the agent identity.
type BotConfig struct {
	Names           []string `json:"names"`             // call-names the agent answers to
	SuperUserID     string   `json:"super_user_id"`     // operator, exempt from cooldown and role checks
	LogGroup        string   `json:"log_group"`         // optional group that receives operational reports
	ForwardSenderID string   `json:"forward_sender_id"` // fallback uin for forward nodes before self-id is known
}

// WelcomeConfig controls the debounced greeting flow.
type WelcomeConfig struct {
	Enabled      bool     `json:"enabled"`
	Groups       []string `json:"groups"` // groups that get greetings
	DelaySeconds float64  `json:"delay_seconds"`
	GapSeconds   float64  `json:"gap_seconds"`
	TestCommand  string   `json:"test_command"` // super-user phrase that force-fires the greeting
}

// TriggerConfig controls keyword trigger matching.
type TriggerConfig struct {
	Groups               []string `json:"groups"`                 // static allow list
	AllowUnlistedGroups  bool     `json:"allow_unlisted_groups"`  // permit runtime-enabled groups outside the list
	PrivateEnabled       bool     `json:"private_enabled"`        // answer triggers in private chats
	CooldownSeconds      float64  `json:"cooldown_seconds"`       // per (group,user) cooldown
	MentionGate          bool     `json:"mention_gate"`           // require the agent to be addressed
	FollowUpDelaySeconds float64  `json:"follow_up_delay_seconds"`
	FollowUpText         string   `json:"follow_up_text"`  // text of the reply-anchored follow-up after a forward
	PrivateHint          string   `json:"private_hint"`    // follow-up hint in private chats
}

// ContentConfig locates the welcome/trigger content tree.
type ContentConfig struct {
	Dir           string  `json:"dir"`
	RescanSeconds float64 `json:"rescan_seconds"` // periodic rescan safety net behind fsnotify
}

// StateConfig locates durable state files.
type StateConfig struct {
	TogglePath string `json:"toggle_path"` // runtime trigger on/off state
	AuditPath  string `json:"audit_path"`  // sqlite audit trail, empty disables it
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:                "ws://127.0.0.1:6700",
			CallTimeoutSeconds: 10,
			ReconnectSeconds:   5,
			SendRatePerSecond:  0,
			SendBurst:          1,
		},
		Bot: BotConfig{
			Names: []string{"洛拉娜", "Another Me"},
		},
		Welcome: WelcomeConfig{
			Enabled:      true,
			DelaySeconds: 60,
			GapSeconds:   1,
			TestCommand:  "Another Me，测试迎新",
		},
		Trigger: TriggerConfig{
			CooldownSeconds:      1,
			MentionGate:          true,
			FollowUpDelaySeconds: 1,
			FollowUpText:         "请阅读该聊天记录内的内容",
			PrivateHint:          "内容较长，已整理为聊天记录发送",
		},
		Content: ContentConfig{
			Dir:           "~/.lorabot/content",
			RescanSeconds: 30,
		},
		State: StateConfig{
			TogglePath: "~/.lorabot/toggles.json",
			AuditPath:  "~/.lorabot/audit.db",
		},
	}
}

// CallTimeout returns the per-action response wait as a Duration.
func (g GatewayConfig) CallTimeout() time.Duration {
	return secondsOr(g.CallTimeoutSeconds, 10*time.Second)
}

// ReconnectBackoff returns the fixed reconnect backoff as a Duration.
func (g GatewayConfig) ReconnectBackoff() time.Duration {
	return secondsOr(g.ReconnectSeconds, 5*time.Second)
}

// Delay returns the welcome debounce window as a Duration.
func (w WelcomeConfig) Delay() time.Duration {
	return secondsOr(w.DelaySeconds, time.Minute)
}

// Gap returns the pause between scripted welcome sends.
func (w WelcomeConfig) Gap() time.Duration {
	return secondsOr(w.GapSeconds, time.Second)
}

// Cooldown returns the per (group,user) trigger cooldown.
func (t TriggerConfig) Cooldown() time.Duration {
	return secondsOr(t.CooldownSeconds, time.Second)
}

// FollowUpDelay returns the pause between a forward and its follow-up.
func (t TriggerConfig) FollowUpDelay() time.Duration {
	return secondsOr(t.FollowUpDelaySeconds, time.Second)
}

// Rescan returns the periodic content rescan interval.
func (c ContentConfig) Rescan() time.Duration {
	return secondsOr(c.RescanSeconds, 30*time.Second)
}

func secondsOr(s float64, def time.Duration) time.Duration {
	if s <= 0 {
		return def
	}
	return time.Duration(s * float64(time.Second))
}
