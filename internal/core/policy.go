package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// PolicyDoc is the persisted enforcement policy document. It is the sole
// signal responders act on: the evaluation loop only ever raises flags in it,
// never lowers them. De-escalation is an explicit administrative operation
// (see ResetFlag), not something the loop does.
type PolicyDoc struct {
	Version   int                        `json:"version"`
	UpdatedAt string                     `json:"updated_at"`
	Policy    map[string]*CategoryPolicy `json:"policy"`
}

// CategoryPolicy holds one category's escalation threshold and its boolean
// enforcement flags. On the wire the flags sit next to the threshold inside
// the category object:
//
//	{"escalation_threshold_24h": 3, "auto_tag_only": true, "auto_remediate_public": false}
type CategoryPolicy struct {
	Threshold int
	Flags     map[string]bool
}

const thresholdKey = "escalation_threshold_24h"

func (p *CategoryPolicy) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Flags)+1)
	out[thresholdKey] = p.Threshold
	for k, v := range p.Flags {
		out[k] = v
	}
	return json.Marshal(out)
}

func (p *CategoryPolicy) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Flags = make(map[string]bool, len(raw))
	for k, v := range raw {
		if k == thresholdKey {
			if err := json.Unmarshal(v, &p.Threshold); err != nil {
				return fmt.Errorf("parsing %s: %w", thresholdKey, err)
			}
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			// Non-boolean extras (comments, future fields) are carried by
			// other tooling; the core only interprets boolean flags.
			continue
		}
		p.Flags[k] = b
	}
	return nil
}

// Flag reports whether the named flag is set.
func (p *CategoryPolicy) Flag(name string) bool {
	return p.Flags[name]
}

// DefaultPolicy returns the policy document used when none has been persisted
// yet. Thresholds and flags mirror the shipped escalation rules.
func DefaultPolicy() *PolicyDoc {
	return &PolicyDoc{
		Version: 1,
		Policy: map[string]*CategoryPolicy{
			CategoryS3Public: {
				Threshold: 3,
				Flags: map[string]bool{
					"auto_tag_only":         true,
					"auto_remediate_public": false,
				},
			},
			CategoryIAMNoMFA: {
				Threshold: 5,
				Flags: map[string]bool{
					"require_mfa":           false,
					"disable_keys_on_nomfa": false,
				},
			},
			CategoryHighRiskAction: {
				Threshold: 10,
				Flags: map[string]bool{
					"page_oncall": false,
				},
			},
			CategoryGuardDutyHighSev: {
				Threshold: 1,
				Flags: map[string]bool{
					"page_oncall": false,
				},
			},
		},
	}
}

// EscalationRule maps a counter condition to one enforcement flag. A rule
// fires when the category counter reaches the category threshold plus Offset
// and the flag is not yet set. Clears optionally names a permissive flag that
// is lowered as part of the same transition (strictness still increases).
type EscalationRule struct {
	Flag   string `yaml:"flag" json:"flag"`
	Offset int    `yaml:"offset" json:"offset"`
	Clears string `yaml:"clears,omitempty" json:"clears,omitempty"`
}

// DefaultEscalationRules returns the shipped category → rules mapping:
// S3 escalates from tag-only to auto-remediation at the threshold; IAM
// requires MFA at the threshold and disables keys two findings later.
func DefaultEscalationRules() map[string][]EscalationRule {
	return map[string][]EscalationRule{
		CategoryS3Public: {
			{Flag: "auto_remediate_public", Clears: "auto_tag_only"},
		},
		CategoryIAMNoMFA: {
			{Flag: "require_mfa"},
			{Flag: "disable_keys_on_nomfa", Offset: 2},
		},
		CategoryHighRiskAction: {
			{Flag: "page_oncall"},
		},
		CategoryGuardDutyHighSev: {
			{Flag: "page_oncall"},
		},
	}
}

// Evaluate runs the one-way escalation state machine over the current
// counters. For each category with a defined threshold, rules fire at most
// once: a flag that is already set produces no Change, so re-running with the
// same counters is a no-op. No rule ever lowers an escalation flag.
//
// UpdatedAt is stamped on every call, changed or not, so consumers can tell
// "evaluated, nothing changed" from "never evaluated".
func Evaluate(doc *PolicyDoc, rules map[string][]EscalationRule, counters map[string]int, now time.Time) []Change {
	var changes []Change

	categories := make([]string, 0, len(rules))
	for c := range rules {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		cp, ok := doc.Policy[category]
		if !ok || cp.Threshold <= 0 {
			continue // no threshold configured for this category
		}
		count := counters[CounterKey(category)]
		for _, rule := range rules[category] {
			if count < cp.Threshold+rule.Offset {
				continue
			}
			if cp.Flag(rule.Flag) {
				continue // already escalated
			}
			if cp.Flags == nil {
				cp.Flags = make(map[string]bool)
			}
			cp.Flags[rule.Flag] = true
			msg := fmt.Sprintf("%s: escalated to %s=true", category, rule.Flag)
			if rule.Clears != "" && cp.Flag(rule.Clears) {
				cp.Flags[rule.Clears] = false
				msg += fmt.Sprintf(", %s=false", rule.Clears)
			}
			changes = append(changes, Change{
				ID:        uuid.New().String(),
				Category:  category,
				Flag:      rule.Flag,
				Message:   msg,
				Timestamp: now.UTC(),
			})
		}
	}

	doc.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	return changes
}

// ResetFlag lowers one enforcement flag. This is the explicit administrative
// de-escalation path; nothing in the evaluation loop calls it.
func (d *PolicyDoc) ResetFlag(category, flag string, now time.Time) error {
	cp, ok := d.Policy[category]
	if !ok {
		return fmt.Errorf("unknown policy category %q", category)
	}
	if _, ok := cp.Flags[flag]; !ok {
		return fmt.Errorf("category %s has no flag %q", category, flag)
	}
	cp.Flags[flag] = false
	d.UpdatedAt = now.UTC().Format(time.RFC3339Nano)
	return nil
}
