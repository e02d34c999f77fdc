package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/synaccel/sentinel/internal/core"
)

// WriteReport renders the evaluation summary for one cycle to a markdown file
// and returns its path. The report is a write-only sink for humans; nothing
// in a later cycle reads it back.
func (g *Gateway) WriteReport(res *core.CycleResult) (string, error) {
	if err := os.MkdirAll(g.reportDir, 0755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}
	name := fmt.Sprintf("sentinel_core_report_%s.md", res.EvaluatedAt.Format("2006-01-02-15-04-05"))
	path := filepath.Join(g.reportDir, name)

	body, err := renderReport(res)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	g.logger.Info().Str("path", path).Msg("evaluation report written")
	return path, nil
}

func renderReport(res *core.CycleResult) (string, error) {
	var b strings.Builder
	b.WriteString("# Sentinel Core (Adaptive Response Loop) Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", res.EvaluatedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## 24h Counters\n")
	keys := make([]string, 0, len(res.Counters))
	for k := range res.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %d\n", k, res.Counters[k])
	}

	b.WriteString("\n## Changes Applied\n")
	if len(res.Changes) == 0 {
		b.WriteString("- None (no escalation)\n")
	} else {
		for _, c := range res.Changes {
			fmt.Fprintf(&b, "- %s\n", c.Message)
		}
	}

	if len(res.Warnings) > 0 {
		b.WriteString("\n## Data Quality Warnings\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	b.WriteString("\n## Current Policy Snapshot\n```json\n")
	snapshot, err := json.MarshalIndent(res.Policy.Policy, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling policy snapshot: %w", err)
	}
	b.Write(snapshot)
	b.WriteString("\n```\n")
	return b.String(), nil
}
