package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Gateway is the persistence boundary the engine drives. Loads return
// documented defaults for missing documents; saves must be atomic with
// respect to partial writes so an interrupted cycle never corrupts the
// previously persisted documents.
type Gateway interface {
	Acquire() error
	Release() error
	LoadState() (*State, error)
	LoadPolicy() (*PolicyDoc, error)
	SaveState(*State) error
	SavePolicy(*PolicyDoc) error
	WriteReport(res *CycleResult) (string, error)
}

// Notifier publishes applied policy changes to downstream consumers.
type Notifier interface {
	PublishChanges(ctx context.Context, changes []Change) error
}

// CycleResult captures everything one evaluation cycle computed.
type CycleResult struct {
	EvaluatedAt time.Time      `json:"evaluated_at"`
	Counters    map[string]int `json:"counters"`
	Changes     []Change       `json:"changes"`
	Warnings    []Warning      `json:"warnings,omitempty"`
	Added       int            `json:"events_added"`
	Dropped     int            `json:"events_dropped"`
	Pruned      int            `json:"events_pruned"`
	State       *State         `json:"-"`
	Policy      *PolicyDoc     `json:"-"`
	ReportPath  string         `json:"report_path,omitempty"`
}

// Engine runs the adaptive escalation loop: merge findings into the event
// log, recompute rolling counters, escalate policy, persist, report. One
// cycle runs to completion before the next begins; the gateway's lock
// excludes concurrent invocations against the same documents.
type Engine struct {
	cfg      *Config
	gw       Gateway
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEngine creates an engine. notifier may be nil.
func NewEngine(cfg *Config, gw Gateway, notifier Notifier, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		gw:       gw,
		notifier: notifier,
		logger:   logger.With().Str("component", "engine").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the engine's clock. Tests use this to pin evaluation
// time.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RunCycle executes one full evaluation over the supplied findings. All
// mutation happens in memory; both documents are written only after the
// whole evaluation succeeds, so a failure mid-cycle leaves the persisted
// state authoritative and untouched.
func (e *Engine) RunCycle(ctx context.Context, findings []Finding) (*CycleResult, error) {
	if err := e.gw.Acquire(); err != nil {
		return nil, fmt.Errorf("acquiring evaluation lock: %w", err)
	}
	defer func() {
		if err := e.gw.Release(); err != nil {
			e.logger.Warn().Err(err).Msg("releasing evaluation lock")
		}
	}()

	now := e.now().UTC()

	state, err := e.gw.LoadState()
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	policy, err := e.gw.LoadPolicy()
	if err != nil {
		return nil, fmt.Errorf("loading policy: %w", err)
	}

	accepted, warnings := ValidateFindings(findings)
	for _, w := range warnings {
		e.logger.Warn().Str("code", w.Code).Str("category", w.Category).Msg(w.Detail)
	}

	store := NewEventStore(e.cfg.Windows.RetentionWindow())
	merge := store.Merge(state, accepted, now)
	for _, w := range merge.Warnings {
		e.logger.Warn().Str("code", w.Code).Str("category", w.Category).Msg(w.Detail)
	}
	warnings = append(warnings, merge.Warnings...)

	known := make([]string, 0, len(policy.Policy))
	for c := range policy.Policy {
		known = append(known, c)
	}
	counters := RecomputeCounters(state.Events, known, e.cfg.Windows.EvaluationWindow(), now)
	state.Counters = counters
	state.LastUpdated = now.Format(time.RFC3339Nano)

	changes := Evaluate(policy, e.cfg.Escalation, counters, now)
	for _, c := range changes {
		e.logger.Info().
			Str("category", c.Category).
			Str("flag", c.Flag).
			Msg("policy escalated")
	}

	if err := e.gw.SaveState(state); err != nil {
		return nil, fmt.Errorf("saving state: %w", err)
	}
	// A crash between the two saves persists state without the matching
	// policy write; Evaluate re-derives the escalation from the counters on
	// the next cycle, so the cost is deferred enforcement, not lost history.
	if err := e.gw.SavePolicy(policy); err != nil {
		return nil, fmt.Errorf("saving policy: %w", err)
	}

	res := &CycleResult{
		EvaluatedAt: now,
		Counters:    counters,
		Changes:     changes,
		Warnings:    warnings,
		Added:       merge.Added,
		Dropped:     merge.Dropped,
		Pruned:      merge.Pruned,
		State:       state,
		Policy:      policy,
	}

	// The report is a write-only sink: a failure here must not fail an
	// already-persisted evaluation.
	if path, err := e.gw.WriteReport(res); err != nil {
		e.logger.Error().Err(err).Msg("writing evaluation report")
	} else {
		res.ReportPath = path
	}

	if e.notifier != nil && len(changes) > 0 {
		if err := e.notifier.PublishChanges(ctx, changes); err != nil {
			e.logger.Warn().Err(err).Msg("publishing policy changes")
		}
	}

	e.logger.Info().
		Int("findings", len(findings)).
		Int("added", merge.Added).
		Int("dropped", merge.Dropped).
		Int("pruned", merge.Pruned).
		Int("changes", len(changes)).
		Msg("evaluation cycle complete")

	return res, nil
}
