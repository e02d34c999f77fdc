package main

// ---------------------------------------------------------------------------
// cmd_policy.go — inspect or reset the escalation policy
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/synaccel/sentinel/internal/store"
)

func cmdPolicy(args []string) {
	if len(args) < 1 {
		errorf("usage: sentinel policy <show|reset> [flags]")
	}
	sub := args[0]
	rest := args[1:]

	switch sub {
	case "show":
		cmdPolicyShow(rest)
	case "reset":
		cmdPolicyReset(rest)
	default:
		errorf("unknown policy subcommand %q (want show or reset)", sub)
	}
}

func cmdPolicyShow(args []string) {
	fs := flag.NewFlagSet("policy show", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	dataDir := fs.String("data", "", "Data directory override")
	fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	gw := store.NewGateway(cfg, newLogger(cfg))
	policy, err := gw.LoadPolicy()
	if err != nil {
		errorf("loading policy: %v", err)
	}
	printJSON(os.Stdout, policy)
}

func cmdPolicyReset(args []string) {
	fs := flag.NewFlagSet("policy reset", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	dataDir := fs.String("data", "", "Data directory override")
	category := fs.String("category", "", "Category to reset (e.g. S3_PUBLIC)")
	flagName := fs.String("flag", "", "Flag to lower (e.g. auto_remediate_public)")
	fs.Parse(args)

	if *category == "" || *flagName == "" {
		errorf("policy reset requires -category and -flag")
	}

	cfg := loadConfig(*configPath, *dataDir)
	gw := store.NewGateway(cfg, newLogger(cfg))

	// errorf exits the process, which would skip a deferred Release and
	// strand the lock file. All lock handling lives in resetPolicyFlag so
	// failure paths here are plain prints.
	if err := resetPolicyFlag(gw, *category, *flagName); err != nil {
		errorf("%v", err)
	}

	fmt.Printf("%s %s.%s lowered\n", green("✓"), *category, *flagName)
}

// resetPolicyFlag lowers one flag under the evaluation lock. The lock is
// released on every path, success or failure.
func resetPolicyFlag(gw *store.Gateway, category, flagName string) error {
	// Same lock as the evaluation loop: reset must not race a running cycle.
	if err := gw.Acquire(); err != nil {
		return err
	}
	defer gw.Release()

	policy, err := gw.LoadPolicy()
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}
	if err := policy.ResetFlag(category, flagName, time.Now()); err != nil {
		return err
	}
	if err := gw.SavePolicy(policy); err != nil {
		return fmt.Errorf("saving policy: %w", err)
	}
	return nil
}
