package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Well-known risk categories produced by the bundled detectors. The category
// set is open: policy and counters handle categories that are not listed here.
const (
	CategoryS3Public         = "S3_PUBLIC"
	CategoryIAMNoMFA         = "IAM_NO_MFA"
	CategoryIAMOldAccessKey  = "IAM_OLD_ACCESS_KEY"
	CategoryAPIFreqAnomaly   = "API_FREQUENCY_ANOMALY"
	CategoryHighRiskAction   = "HIGH_RISK_ACTION"
	CategoryGuardDutyHighSev = "GUARDDUTY_HIGH_SEV"
	CategoryGuardDutyFinding = "GUARDDUTY_FINDING"
)

// Finding is a single raw risk observation from a detector. Identity is an
// opaque origin marker (resource ARN, bucket name, CloudTrail event ID) used
// for deduplication only — it carries no recency information.
type Finding struct {
	Category   string            `json:"category"`
	Identity   string            `json:"identity"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Marshal serializes the finding to JSON.
func (f *Finding) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFinding deserializes a Finding from JSON.
func UnmarshalFinding(data []byte) (*Finding, error) {
	var f Finding
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Warning is a structured data-quality note emitted while processing findings
// or stored events. Warnings are observable (logged, reported, asserted on in
// tests) but never abort a cycle.
type Warning struct {
	Code     string `json:"code"`
	Category string `json:"category,omitempty"`
	Identity string `json:"identity,omitempty"`
	Detail   string `json:"detail"`
}

// Warning codes.
const (
	WarnMissingCategory = "missing_category"
	WarnEmptyIdentity   = "empty_identity"
	WarnBadTimestamp    = "bad_timestamp"
)

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Detail)
}

// ValidateFindings filters a raw batch down to the findings the core will
// accept. A finding without a category is rejected. An empty identity is
// accepted — all such findings of one category collapse to a single stored
// event — but flagged, because that collapse is rarely what the caller wants.
func ValidateFindings(findings []Finding) ([]Finding, []Warning) {
	accepted := make([]Finding, 0, len(findings))
	var warnings []Warning
	for _, f := range findings {
		if f.Category == "" {
			warnings = append(warnings, Warning{
				Code:     WarnMissingCategory,
				Identity: f.Identity,
				Detail:   "finding rejected: category is required",
			})
			continue
		}
		if f.Identity == "" {
			warnings = append(warnings, Warning{
				Code:     WarnEmptyIdentity,
				Category: f.Category,
				Detail:   fmt.Sprintf("finding for %s has no identity; duplicates will collapse", f.Category),
			})
		}
		accepted = append(accepted, f)
	}
	return accepted, warnings
}

// Change records one enforcement flag transition applied during a cycle.
// Changes are ephemeral: they are reported and optionally published, not
// persisted with the state document.
type Change struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Flag      string    `json:"flag"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
