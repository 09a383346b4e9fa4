package trigger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/moonsidelab/lorabot/internal/togglestate"
)

func lastSend(t *testing.T, f *fakeMessenger) sentCall {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatal("no sends recorded")
	}
	return f.calls[len(f.calls)-1]
}

func TestSwitchGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("member denied", func(t *testing.T) {
		e, f, toggles := newTestEngine(t, baseConfig(), triggerSnapshot())
		evt := groupMsg("300", "1", "洛拉娜 respond on")
		evt.Sender.Role = "member"
		if err := e.HandleMessage(ctx, evt); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != msgNeedAdmin {
			t.Errorf("reply = %q, want denial", got.text)
		}
		if toggles.GroupEnabled("300") {
			t.Error("denied command changed state")
		}
	})

	t.Run("admin enables unlisted group", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "toggles.json")
		f := &fakeMessenger{}
		toggles := togglestate.Open(path)
		e := NewEngine(baseConfig(), f, toggles, triggerSnapshot, func() string { return "999" })

		evt := groupMsg("300", "1", "洛拉娜 respond on")
		evt.Sender.Role = "admin"
		if err := e.HandleMessage(ctx, evt); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != msgSwitchOn {
			t.Errorf("reply = %q, want %q", got.text, msgSwitchOn)
		}
		if !toggles.GroupEnabled("300") {
			t.Fatal("group not enabled")
		}
		// The change is durable.
		if !togglestate.Open(path).GroupEnabled("300") {
			t.Error("enable not persisted")
		}

		// Now a trigger message in that group answers.
		if err := e.HandleMessage(ctx, groupMsg("300", "2", "洛拉娜 faq")); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != "faq answer" {
			t.Errorf("post-enable reply = %q, want faq answer", got.text)
		}

		// And the owner can turn it off again.
		off := groupMsg("300", "1", "洛拉娜 respond off")
		off.Sender.Role = "owner"
		if err := e.HandleMessage(ctx, off); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != msgSwitchOff {
			t.Errorf("reply = %q, want %q", got.text, msgSwitchOff)
		}
		if togglestate.Open(path).GroupEnabled("300") {
			t.Error("disable not persisted")
		}
	})

	t.Run("listed group cannot be turned off", func(t *testing.T) {
		e, f, _ := newTestEngine(t, baseConfig(), triggerSnapshot())
		evt := groupMsg("100", "1", "洛拉娜 respond off")
		evt.Sender.Role = "owner"
		if err := e.HandleMessage(ctx, evt); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != msgListedLocked {
			t.Errorf("reply = %q, want %q", got.text, msgListedLocked)
		}
	})

	t.Run("listed group on is already on", func(t *testing.T) {
		e, f, _ := newTestEngine(t, baseConfig(), triggerSnapshot())
		evt := groupMsg("100", "1", "洛拉娜 respond on")
		evt.Sender.Role = "admin"
		if err := e.HandleMessage(ctx, evt); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != msgAlreadyOn {
			t.Errorf("reply = %q, want %q", got.text, msgAlreadyOn)
		}
	})

	t.Run("unlisted enable closed without the flag", func(t *testing.T) {
		cfg := baseConfig()
		cfg.AllowUnlistedGroups = false
		e, f, toggles := newTestEngine(t, cfg, triggerSnapshot())
		evt := groupMsg("300", "1", "洛拉娜 respond on")
		evt.Sender.Role = "admin"
		if err := e.HandleMessage(ctx, evt); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != msgUnlistedClosed {
			t.Errorf("reply = %q, want %q", got.text, msgUnlistedClosed)
		}
		if toggles.GroupEnabled("300") {
			t.Error("closed command changed state")
		}
	})

	t.Run("super-user bypasses the role check", func(t *testing.T) {
		e, f, toggles := newTestEngine(t, baseConfig(), triggerSnapshot())
		evt := groupMsg("300", "9", "洛拉娜 respond on")
		evt.Sender.Role = "member"
		if err := e.HandleMessage(ctx, evt); err != nil {
			t.Fatal(err)
		}
		if got := lastSend(t, f); got.text != msgSwitchOn {
			t.Errorf("reply = %q, want %q", got.text, msgSwitchOn)
		}
		if !toggles.GroupEnabled("300") {
			t.Error("group not enabled")
		}
	})
}

func TestSwitchPrivate(t *testing.T) {
	ctx := context.Background()
	e, f, toggles := newTestEngine(t, baseConfig(), triggerSnapshot())

	if err := e.HandleMessage(ctx, privateMsg("1", "洛拉娜 respond off")); err != nil {
		t.Fatal(err)
	}
	if got := lastSend(t, f); got.kind != "private" || got.text != msgPrivateOff {
		t.Errorf("reply = %+v, want %q", got, msgPrivateOff)
	}
	if !toggles.DMBlocked("1") {
		t.Fatal("sender not blocked")
	}

	// A trigger message while blocked is silent.
	before := len(f.calls)
	if err := e.HandleMessage(ctx, privateMsg("1", "洛拉娜 faq")); err != nil {
		t.Fatal(err)
	}
	if len(f.calls) != before {
		t.Errorf("blocked correspondent got a reply: %+v", f.calls[before:])
	}

	// The switch itself still works while blocked.
	if err := e.HandleMessage(ctx, privateMsg("1", "洛拉娜 respond on")); err != nil {
		t.Fatal(err)
	}
	if got := lastSend(t, f); got.text != msgPrivateOn {
		t.Errorf("reply = %q, want %q", got.text, msgPrivateOn)
	}
	if toggles.DMBlocked("1") {
		t.Error("sender still blocked after on")
	}
}
