package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.URL != "ws://127.0.0.1:6700" {
		t.Errorf("url = %q", cfg.Gateway.URL)
	}
	if !cfg.Welcome.Enabled || cfg.Welcome.Delay() != time.Minute {
		t.Errorf("welcome defaults off: %+v", cfg.Welcome)
	}
	if !cfg.Trigger.MentionGate {
		t.Error("mention gate should default on")
	}
}

func TestLoadJSON5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	body := `{
		// comments are allowed
		gateway: {
			url: "ws://gw:6700",
			reconnect_seconds: 2,
		},
		trigger: {
			groups: ["100", "200"],
			cooldown_seconds: 0.5,
		},
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.URL != "ws://gw:6700" {
		t.Errorf("url = %q", cfg.Gateway.URL)
	}
	if cfg.Gateway.ReconnectBackoff() != 2*time.Second {
		t.Errorf("backoff = %v", cfg.Gateway.ReconnectBackoff())
	}
	if want := []string{"100", "200"}; !reflect.DeepEqual(cfg.Trigger.Groups, want) {
		t.Errorf("groups = %v, want %v", cfg.Trigger.Groups, want)
	}
	if cfg.Trigger.Cooldown() != 500*time.Millisecond {
		t.Errorf("cooldown = %v", cfg.Trigger.Cooldown())
	}
	// Untouched sections keep their defaults.
	if cfg.Welcome.TestCommand != "Another Me，测试迎新" {
		t.Errorf("test command = %q", cfg.Welcome.TestCommand)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte("{gateway:"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LORABOT_GATEWAY_URL", "ws://env:6700")
	t.Setenv("LORABOT_TRIGGER_GROUPS", " 100 , 200 ,")
	t.Setenv("LORABOT_PRIVATE_ENABLED", "true")
	t.Setenv("LORABOT_WELCOME_DELAY_SECONDS", "15")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.URL != "ws://env:6700" {
		t.Errorf("url = %q", cfg.Gateway.URL)
	}
	if want := []string{"100", "200"}; !reflect.DeepEqual(cfg.Trigger.Groups, want) {
		t.Errorf("groups = %v, want %v", cfg.Trigger.Groups, want)
	}
	if !cfg.Trigger.PrivateEnabled {
		t.Error("private_enabled override lost")
	}
	if cfg.Welcome.Delay() != 15*time.Second {
		t.Errorf("delay = %v", cfg.Welcome.Delay())
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	cases := []struct{ in, want string }{
		{"~/x/y", filepath.Join(home, "x/y")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~user/x", "~user/x"},
	}
	for _, tc := range cases {
		if got := ExpandPath(tc.in); got != tc.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDurationFallbacks(t *testing.T) {
	var g GatewayConfig
	if g.CallTimeout() != 10*time.Second {
		t.Errorf("zero call timeout = %v", g.CallTimeout())
	}
	g.CallTimeoutSeconds = -1
	if g.CallTimeout() != 10*time.Second {
		t.Errorf("negative call timeout = %v", g.CallTimeout())
	}
}
