package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.expandPaths()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.expandPaths()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("LORABOT_GATEWAY_URL", &c.Gateway.URL)
	envStr("LORABOT_SUPER_USER_ID", &c.Bot.SuperUserID)
	envStr("LORABOT_LOG_GROUP", &c.Bot.LogGroup)
	envStr("LORABOT_CONTENT_DIR", &c.Content.Dir)
	envStr("LORABOT_TOGGLE_PATH", &c.State.TogglePath)
	envStr("LORABOT_AUDIT_PATH", &c.State.AuditPath)

	if v := os.Getenv("LORABOT_NAMES"); v != "" {
		c.Bot.Names = splitList(v)
	}
	if v := os.Getenv("LORABOT_WELCOME_GROUPS"); v != "" {
		c.Welcome.Groups = splitList(v)
	}
	if v := os.Getenv("LORABOT_TRIGGER_GROUPS"); v != "" {
		c.Trigger.Groups = splitList(v)
	}
	if v := os.Getenv("LORABOT_WELCOME_DELAY_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Welcome.DelaySeconds = f
		}
	}
	if v := os.Getenv("LORABOT_PRIVATE_ENABLED"); v != "" {
		c.Trigger.PrivateEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LORABOT_ALLOW_UNLISTED_GROUPS"); v != "" {
		c.Trigger.AllowUnlistedGroups = v == "true" || v == "1"
	}
}

// expandPaths resolves a leading ~ in all path-valued fields.
func (c *Config) expandPaths() {
	c.Content.Dir = ExpandPath(c.Content.Dir)
	c.State.TogglePath = ExpandPath(c.State.TogglePath)
	c.State.AuditPath = ExpandPath(c.State.AuditPath)
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
