package main

// ---------------------------------------------------------------------------
// cmd_status.go — show counters, policy, and event log summary
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/synaccel/sentinel/internal/store"
)

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	dataDir := fs.String("data", "", "Data directory override")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	logger := newLogger(cfg)
	gw := store.NewGateway(cfg, logger)

	state, err := gw.LoadState()
	if err != nil {
		errorf("loading state: %v", err)
	}
	policy, err := gw.LoadPolicy()
	if err != nil {
		errorf("loading policy: %v", err)
	}

	if parseFormat(*format) == FormatJSON {
		printJSON(os.Stdout, map[string]interface{}{
			"events_retained": len(state.Events),
			"last_updated":    state.LastUpdated,
			"counters":        state.Counters,
			"policy":          policy,
		})
		return
	}

	fmt.Printf("%s Status\n\n", bold("sentinel"))
	fmt.Printf("Data dir:        %s\n", cfg.DataDir)
	fmt.Printf("Events retained: %d\n", len(state.Events))
	if state.LastUpdated != "" {
		fmt.Printf("Last evaluated:  %s\n", state.LastUpdated)
	} else {
		fmt.Printf("Last evaluated:  %s\n", dim("never"))
	}
	fmt.Println()

	counterKeys := make([]string, 0, len(state.Counters))
	for k := range state.Counters {
		counterKeys = append(counterKeys, k)
	}
	sort.Strings(counterKeys)

	ctbl := NewTable(os.Stdout, "COUNTER", "VALUE")
	for _, k := range counterKeys {
		ctbl.AddRow(k, strconv.Itoa(state.Counters[k]))
	}
	ctbl.Render()
	fmt.Println()

	categories := make([]string, 0, len(policy.Policy))
	for c := range policy.Policy {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	ptbl := NewTable(os.Stdout, "CATEGORY", "THRESHOLD", "FLAG", "STATE")
	for _, c := range categories {
		cp := policy.Policy[c]
		flags := make([]string, 0, len(cp.Flags))
		for f := range cp.Flags {
			flags = append(flags, f)
		}
		sort.Strings(flags)
		for i, f := range flags {
			cat, th := "", ""
			if i == 0 {
				cat = c
				th = strconv.Itoa(cp.Threshold)
			}
			onoff := red("off")
			if cp.Flags[f] {
				onoff = green("on")
			}
			ptbl.AddRow(cat, th, f, onoff)
		}
	}
	ptbl.Render()
	if policy.UpdatedAt != "" {
		fmt.Printf("\nPolicy updated: %s\n", policy.UpdatedAt)
	}
}
