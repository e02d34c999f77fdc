package core

import "time"

// Window defaults. The evaluation window must be strictly smaller than the
// retention window so counters can only ever see events still in the log.
const (
	DefaultEvaluationWindow = 24 * time.Hour
	DefaultRetentionWindow  = 48 * time.Hour
)

// CounterKey returns the counter map key for a category. Counters are keyed
// "<CATEGORY>_24h" for continuity with state documents written by earlier
// deployments.
func CounterKey(category string) string {
	return category + "_24h"
}

// RecomputeCounters derives the per-category counters from the event log:
// one count per category for events observed within the evaluation window
// ending at now. The result always contains an entry (possibly zero) for each
// category in known; categories seen only in the log are counted dynamically.
//
// Counters are always rebuilt wholesale from the log, never patched, so they
// cannot drift from the events they summarize. Pure function of (events, now).
func RecomputeCounters(events []Event, known []string, window time.Duration, now time.Time) map[string]int {
	if window <= 0 {
		window = DefaultEvaluationWindow
	}
	counters := make(map[string]int, len(known))
	for _, c := range known {
		counters[CounterKey(c)] = 0
	}

	cutoff := now.Add(-window)
	for _, e := range events {
		ts, ok := e.Time()
		if !ok {
			// Malformed timestamps are retained in the log (fail open) but
			// cannot be placed in the window, so they do not count.
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		counters[CounterKey(e.Category)]++
	}
	return counters
}
