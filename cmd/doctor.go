package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moonsidelab/lorabot/internal/audit"
	"github.com/moonsidelab/lorabot/internal/config"
	"github.com/moonsidelab/lorabot/internal/content"
	"github.com/moonsidelab/lorabot/internal/togglestate"
)

// doctorCmd checks the local setup without connecting to the gateway.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check config, content tree and durable state",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	ok := true
	check := func(name string, err error) {
		if err != nil {
			ok = false
			fmt.Printf("✗ %s: %v\n", name, err)
			return
		}
		fmt.Printf("✓ %s\n", name)
	}

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	check(fmt.Sprintf("config (%s)", cfgPath), err)
	if err != nil {
		os.Exit(1)
	}

	if len(cfg.Bot.Names) == 0 {
		ok = false
		fmt.Println("✗ bot.names: empty, the agent can never be addressed")
	} else {
		fmt.Printf("✓ bot.names: %v\n", cfg.Bot.Names)
	}

	store := content.NewStore(cfg.Content.Dir)
	snap := store.Snapshot()
	fmt.Printf("✓ content (%s): welcome=%d+%d triggers=%d+%d\n",
		cfg.Content.Dir,
		len(snap.WelcomePlain), len(snap.WelcomePacks),
		len(snap.TriggerSingles), len(snap.TriggerGroups))

	toggles := togglestate.Open(cfg.State.TogglePath)
	_ = toggles
	fmt.Printf("✓ toggle state (%s)\n", cfg.State.TogglePath)

	if cfg.State.AuditPath != "" {
		trail, err := audit.Open(cfg.State.AuditPath)
		check(fmt.Sprintf("audit trail (%s)", cfg.State.AuditPath), err)
		if err == nil {
			trail.Close()
		}
	}

	if !ok {
		os.Exit(1)
	}
}
