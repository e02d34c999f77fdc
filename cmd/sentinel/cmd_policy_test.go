package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
	"github.com/synaccel/sentinel/internal/store"
)

func TestResetPolicyFlag_ReleasesLockOnError(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.DataDir = t.TempDir()
	gw := store.NewGateway(cfg, zerolog.Nop())

	if err := resetPolicyFlag(gw, "BOGUS", "nope"); err == nil {
		t.Fatal("expected error for unknown category")
	}

	lockPath := filepath.Join(cfg.DataDir, "sentinel.lock")
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind after failed reset (stat: %v)", err)
	}

	// A later reset against the same data dir must not see a stale lock.
	if err := resetPolicyFlag(gw, core.CategoryS3Public, "auto_tag_only"); err != nil {
		t.Fatalf("reset after failed reset: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind after successful reset (stat: %v)", err)
	}

	policy, err := gw.LoadPolicy()
	if err != nil {
		t.Fatalf("loading policy: %v", err)
	}
	if policy.Policy[core.CategoryS3Public].Flag("auto_tag_only") {
		t.Error("auto_tag_only still set after reset")
	}
}

func TestResetPolicyFlag_FailsWhileLockHeld(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.DataDir = t.TempDir()
	gw := store.NewGateway(cfg, zerolog.Nop())

	if err := gw.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer gw.Release()

	if err := resetPolicyFlag(gw, core.CategoryS3Public, "auto_tag_only"); err == nil {
		t.Fatal("expected error while evaluation lock is held")
	}
}
