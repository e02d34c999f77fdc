package main

// ---------------------------------------------------------------------------
// cmd_detect.go — run the detectors and print findings without evaluating
// ---------------------------------------------------------------------------

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/synaccel/sentinel/internal/detect"
)

func cmdDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	format := fs.String("format", "table", "Output format: table, json, ndjson")
	only := fs.String("only", "", "Comma-separated detector names (s3,iam,cloudtrail,guardduty)")
	fs.Parse(args)

	cfg := loadConfig(*configPath, "")
	logger := newLogger(cfg)
	ctx := context.Background()

	awsCfg, err := detect.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		errorf("%v", err)
	}
	clients := detect.NewClients(awsCfg)
	detectors := detect.Enabled(cfg, clients, logger)

	if *only != "" {
		var wanted []string
		for _, name := range strings.Split(*only, ",") {
			wanted = append(wanted, strings.TrimSpace(strings.ToLower(name)))
		}
		filtered := detectors[:0]
		for _, d := range detectors {
			for _, w := range wanted {
				// "s3" selects s3_public_access; full names work too.
				if w != "" && strings.HasPrefix(d.Name(), w) {
					filtered = append(filtered, d)
					break
				}
			}
		}
		detectors = filtered
	}
	if len(detectors) == 0 {
		errorf("no detectors selected")
	}

	findings := detect.RunAll(ctx, detectors, logger)

	switch parseFormat(*format) {
	case FormatJSON:
		printJSON(os.Stdout, findings)
	case FormatNDJSON:
		enc := json.NewEncoder(os.Stdout)
		for _, f := range findings {
			if err := enc.Encode(f); err != nil {
				errorf("encoding finding: %v", err)
			}
		}
	default:
		if len(findings) == 0 {
			fmt.Printf("%s no findings\n", green("✓"))
			return
		}
		tbl := NewTable(os.Stdout, "CATEGORY", "IDENTITY", "DETAIL")
		for _, f := range findings {
			tbl.AddRow(f.Category, f.Identity, findingDetail(f.Attributes))
		}
		tbl.Render()
		fmt.Printf("\n%d finding(s)\n", len(findings))
	}
}

// findingDetail flattens attributes into a stable "k=v" summary column.
func findingDetail(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, " ")
}
