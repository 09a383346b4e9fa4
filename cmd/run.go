package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/moonsidelab/lorabot/internal/audit"
	"github.com/moonsidelab/lorabot/internal/config"
	"github.com/moonsidelab/lorabot/internal/content"
	"github.com/moonsidelab/lorabot/internal/dispatcher"
	"github.com/moonsidelab/lorabot/internal/onebot"
	"github.com/moonsidelab/lorabot/internal/togglestate"
	"github.com/moonsidelab/lorabot/internal/trigger"
	"github.com/moonsidelab/lorabot/internal/welcome"
)

func runAgent() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("agent stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("agent stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	toggles := togglestate.Open(cfg.State.TogglePath)
	store := content.NewStore(cfg.Content.Dir)

	var trail *audit.Log
	if cfg.State.AuditPath != "" {
		var err error
		trail, err = audit.Open(cfg.State.AuditPath)
		if err != nil {
			slog.Warn("audit trail disabled", "error", err)
		} else {
			defer trail.Close()
		}
	}

	caller := onebot.NewCaller(cfg.Gateway.CallTimeout(), cfg.Gateway.SendRatePerSecond, cfg.Gateway.SendBurst)
	sup := onebot.NewSupervisor(cfg.Gateway.URL, cfg.Gateway.ReconnectBackoff(), caller)

	identity := &dispatcher.Identity{}

	forwardName := ""
	if len(cfg.Bot.Names) > 0 {
		forwardName = cfg.Bot.Names[0]
	}

	sch := welcome.NewScheduler(welcome.Config{
		Delay:             cfg.Welcome.Delay(),
		Gap:               cfg.Welcome.Gap(),
		LogGroup:          cfg.Bot.LogGroup,
		ForwardSenderID:   cfg.Bot.ForwardSenderID,
		ForwardSenderName: forwardName,
	}, caller, store.Snapshot, identity.Get)

	eng := trigger.NewEngine(trigger.Config{
		Names:               cfg.Bot.Names,
		SuperUserID:         cfg.Bot.SuperUserID,
		Groups:              cfg.Trigger.Groups,
		AllowUnlistedGroups: cfg.Trigger.AllowUnlistedGroups,
		PrivateEnabled:      cfg.Trigger.PrivateEnabled,
		Cooldown:            cfg.Trigger.Cooldown(),
		MentionGate:         cfg.Trigger.MentionGate,
		FollowUpDelay:       cfg.Trigger.FollowUpDelay(),
		FollowUpText:        cfg.Trigger.FollowUpText,
		PrivateHint:         cfg.Trigger.PrivateHint,
		ForwardSenderID:     cfg.Bot.ForwardSenderID,
		ForwardSenderName:   forwardName,
	}, caller, toggles, store.Snapshot, identity.Get)
	eng.SetRecorder(trail)

	disp := dispatcher.New(dispatcher.Config{
		WelcomeEnabled: cfg.Welcome.Enabled,
		WelcomeGroups:  cfg.Welcome.Groups,
		TestCommand:    cfg.Welcome.TestCommand,
		SuperUserID:    cfg.Bot.SuperUserID,
	}, sup.Events(), identity, sch, eng, trail)

	slog.Info("lorabot starting",
		"gateway", cfg.Gateway.URL,
		"welcome_enabled", cfg.Welcome.Enabled,
		"welcome_groups", cfg.Welcome.Groups,
		"trigger_groups", cfg.Trigger.Groups,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })
	g.Go(func() error { return disp.Run(gctx) })
	g.Go(func() error { return store.Watch(gctx, cfg.Content.Rescan()) })
	return g.Wait()
}
