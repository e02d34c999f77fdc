package main

// ---------------------------------------------------------------------------
// cmd_run.go — detect across AWS and run one full evaluation cycle
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/synaccel/sentinel/internal/core"
	"github.com/synaccel/sentinel/internal/detect"
	"github.com/synaccel/sentinel/internal/notify"
	"github.com/synaccel/sentinel/internal/store"
)

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	dataDir := fs.String("data", "", "Data directory override")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	logger := newLogger(cfg)
	ctx := context.Background()

	awsCfg, err := detect.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		errorf("%v", err)
	}
	clients := detect.NewClients(awsCfg)
	detectors := detect.Enabled(cfg, clients, logger)
	if len(detectors) == 0 {
		errorf("no detectors enabled; nothing to do")
	}

	findings := detect.RunAll(ctx, detectors, logger)

	var notifier core.Notifier
	pub, err := notify.NewPublisher(cfg.Notify, logger)
	if err != nil {
		warnf("notifications disabled: %v", err)
	} else if pub != nil {
		defer pub.Close()
		notifier = pub
	}

	gw := store.NewGateway(cfg, logger)
	engine := core.NewEngine(cfg, gw, notifier, logger)
	res, err := engine.RunCycle(ctx, findings)
	if err != nil {
		errorf("%v", err)
	}

	printCycleResult(res, parseFormat(*format))
}

// printCycleResult renders one cycle's outcome. Shared by run and evaluate.
func printCycleResult(res *core.CycleResult, outFmt OutputFormat) {
	if outFmt == FormatJSON {
		printJSON(os.Stdout, res)
		return
	}

	fmt.Printf("%s Evaluation complete at %s\n\n", bold("sentinel"), res.EvaluatedAt.Format("2006-01-02 15:04:05 MST"))

	keys := make([]string, 0, len(res.Counters))
	for k := range res.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tbl := NewTable(os.Stdout, "COUNTER", "VALUE")
	for _, k := range keys {
		tbl.AddRow(k, strconv.Itoa(res.Counters[k]))
	}
	tbl.Render()
	fmt.Println()

	if len(res.Changes) == 0 {
		fmt.Printf("%s no policy changes\n", dim("·"))
	} else {
		for _, c := range res.Changes {
			fmt.Printf("%s %s\n", yellow("↑"), c.Message)
		}
	}

	for _, w := range res.Warnings {
		warnf("%s", w.String())
	}

	fmt.Printf("\nEvents: %d added, %d duplicate, %d pruned\n", res.Added, res.Dropped, res.Pruned)
	if res.ReportPath != "" {
		fmt.Printf("Report: %s\n", cyan(res.ReportPath))
	}
}
