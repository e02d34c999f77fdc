// Package store is the persistence gateway for the sentinel loop: atomic
// load/save of the state and policy documents, a lock file excluding
// concurrent evaluations, and the human-readable evaluation report.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/synaccel/sentinel/internal/core"
)

// Gateway owns the on-disk documents under one data directory.
type Gateway struct {
	statePath  string
	policyPath string
	reportDir  string
	lockPath   string
	logger     zerolog.Logger
}

// NewGateway creates a gateway rooted at the config's data directory.
func NewGateway(cfg *core.Config, logger zerolog.Logger) *Gateway {
	return &Gateway{
		statePath:  cfg.StatePath(),
		policyPath: cfg.PolicyPath(),
		reportDir:  cfg.ReportDir(),
		lockPath:   filepath.Join(cfg.DataDir, "sentinel.lock"),
		logger:     logger.With().Str("component", "store").Logger(),
	}
}

// Acquire takes the evaluation lock. A second invocation against the same
// data directory fails fast instead of racing the load-mutate-save sequence.
func (g *Gateway) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(g.lockPath), 0755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	f, err := os.OpenFile(g.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			holder, _ := os.ReadFile(g.lockPath)
			return fmt.Errorf("lock %s held by %s; is another evaluation running?", g.lockPath, string(holder))
		}
		return fmt.Errorf("creating lock file: %w", err)
	}
	fmt.Fprintf(f, "pid %d", os.Getpid())
	return f.Close()
}

// Release drops the evaluation lock.
func (g *Gateway) Release() error {
	if err := os.Remove(g.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}

// LoadState reads the state document, returning the default for a missing
// file. A document that exists but cannot be parsed is an error: silently
// resetting the event log would erase history an operator may need.
func (g *Gateway) LoadState() (*core.State, error) {
	var state core.State
	ok, err := g.loadJSON(g.statePath, &state)
	if err != nil {
		return nil, err
	}
	if !ok {
		g.logger.Debug().Str("path", g.statePath).Msg("no state document; starting from defaults")
		return core.DefaultState(), nil
	}
	if state.Counters == nil {
		state.Counters = map[string]int{}
	}
	return &state, nil
}

// LoadPolicy reads the policy document, returning the default for a missing
// file.
func (g *Gateway) LoadPolicy() (*core.PolicyDoc, error) {
	var doc core.PolicyDoc
	ok, err := g.loadJSON(g.policyPath, &doc)
	if err != nil {
		return nil, err
	}
	if !ok {
		g.logger.Debug().Str("path", g.policyPath).Msg("no policy document; starting from defaults")
		return core.DefaultPolicy(), nil
	}
	if doc.Policy == nil {
		doc.Policy = map[string]*core.CategoryPolicy{}
	}
	return &doc, nil
}

// SaveState persists the state document atomically.
func (g *Gateway) SaveState(state *core.State) error {
	return g.saveJSON(g.statePath, state)
}

// SavePolicy persists the policy document atomically.
func (g *Gateway) SavePolicy(doc *core.PolicyDoc) error {
	return g.saveJSON(g.policyPath, doc)
}

func (g *Gateway) loadJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

// saveJSON writes to a temp file in the same directory and renames it into
// place, so a crash mid-write never corrupts the previous valid document.
func (g *Gateway) saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
