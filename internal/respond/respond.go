// Package respond implements the enforcement side of the loop: responders
// read the escalated policy document and act on the resources named by
// current findings. Responders only ever consume policy — nothing here feeds
// back into the evaluation core.
package respond

import (
	"context"
	"time"

	"github.com/synaccel/sentinel/internal/core"
)

// ActionStatus tracks the outcome of one response action.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "SUCCESS"
	StatusFailed  ActionStatus = "FAILED"
	StatusSkipped ActionStatus = "SKIPPED"
	StatusDryRun  ActionStatus = "DRY_RUN"
)

// ActionRecord is the audit entry for one executed (or skipped) action.
type ActionRecord struct {
	Timestamp time.Time    `json:"timestamp"`
	Responder string       `json:"responder"`
	Action    string       `json:"action"`
	Target    string       `json:"target"`
	Status    ActionStatus `json:"status"`
	Detail    string       `json:"detail,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Responder applies one category's enforcement to the resources surfaced by
// findings, honoring the flags in the policy document.
type Responder interface {
	Name() string
	Apply(ctx context.Context, policy *core.PolicyDoc, findings []core.Finding) []ActionRecord
}

// Tag applied to remediated or flagged resources.
const (
	flagTagKey = "SentinelFlagged"
)
