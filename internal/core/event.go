package core

import (
	"encoding/json"
	"time"
)

// Event is the persisted, deduplicated form of a Finding. ObservedAt is
// assigned once at first ingestion and never updated; the raw string is kept
// alongside the parsed time so malformed records round-trip untouched.
type Event struct {
	Category   string            `json:"type"`
	Identity   string            `json:"identity"`
	ObservedAt string            `json:"ts"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// eventJSON mirrors Event on the wire and additionally accepts the legacy
// "report" key that older state documents used in place of "identity".
type eventJSON struct {
	Category   string            `json:"type"`
	Identity   string            `json:"identity,omitempty"`
	Report     string            `json:"report,omitempty"`
	ObservedAt string            `json:"ts"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Category = raw.Category
	e.Identity = raw.Identity
	if e.Identity == "" {
		e.Identity = raw.Report
	}
	e.ObservedAt = raw.ObservedAt
	e.Attributes = raw.Attributes
	return nil
}

// Key returns the deduplication key for this event.
func (e *Event) Key() EventKey {
	return EventKey{Category: e.Category, Identity: e.Identity}
}

// Time parses the stored timestamp. ok is false for malformed records.
func (e *Event) Time() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, e.ObservedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// EventKey identifies the (category, identity) pair under which at most one
// event may be stored.
type EventKey struct {
	Category string
	Identity string
}

// State is the persisted rolling memory of the loop: the time-bounded event
// log, the counters recomputed from it each cycle, and the evaluation stamp.
type State struct {
	Events      []Event        `json:"events"`
	Counters    map[string]int `json:"counters"`
	LastUpdated string         `json:"last_updated"`
}

// DefaultState returns the document used when no state has been persisted yet.
func DefaultState() *State {
	return &State{
		Events:   []Event{},
		Counters: map[string]int{},
	}
}
