package core

import (
	"fmt"
	"time"
)

// EventStore merges detector findings into a State's event log and prunes
// events that have aged out of the retention window. It performs no I/O; the
// caller owns loading and persisting the State around a Merge call.
type EventStore struct {
	retention time.Duration
}

// NewEventStore creates a store with the given retention window. Events older
// than the window (relative to the merge time) are pruned on every merge.
func NewEventStore(retention time.Duration) *EventStore {
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}
	return &EventStore{retention: retention}
}

// MergeResult summarizes one Merge call.
type MergeResult struct {
	Added    int
	Dropped  int // duplicates, either of stored events or within the batch
	Pruned   int
	Warnings []Warning
}

// Merge folds findings into state.Events, deduplicating on (category,
// identity) and stamping new events with now. The working set of seen keys is
// seeded from the stored events and grows as the batch is processed, so two
// findings with the same new key in one batch insert only once.
//
// After merging, events older than the retention window are pruned. A stored
// timestamp that fails to parse keeps its event (fail open) and yields a
// warning; dropping it would silently erase history on a malformed record.
func (s *EventStore) Merge(state *State, findings []Finding, now time.Time) MergeResult {
	var res MergeResult

	seen := make(map[EventKey]struct{}, len(state.Events)+len(findings))
	for i := range state.Events {
		seen[state.Events[i].Key()] = struct{}{}
	}

	for _, f := range findings {
		key := EventKey{Category: f.Category, Identity: f.Identity}
		if _, dup := seen[key]; dup {
			res.Dropped++
			continue
		}
		seen[key] = struct{}{}
		state.Events = append(state.Events, Event{
			Category:   f.Category,
			Identity:   f.Identity,
			ObservedAt: now.UTC().Format(time.RFC3339Nano),
			Attributes: f.Attributes,
		})
		res.Added++
	}

	cutoff := now.Add(-s.retention)
	kept := state.Events[:0]
	for _, e := range state.Events {
		ts, ok := e.Time()
		if !ok {
			res.Warnings = append(res.Warnings, Warning{
				Code:     WarnBadTimestamp,
				Category: e.Category,
				Identity: e.Identity,
				Detail:   fmt.Sprintf("unparseable timestamp %q; keeping event", e.ObservedAt),
			})
			kept = append(kept, e)
			continue
		}
		if ts.Before(cutoff) {
			res.Pruned++
			continue
		}
		kept = append(kept, e)
	}
	state.Events = kept

	return res
}
