package main

// ---------------------------------------------------------------------------
// cmd_respond.go — apply responders to current findings under current policy
// ---------------------------------------------------------------------------

import (
	"context"
	"flag"
	"fmt"
	"os"

	iamsvc "github.com/aws/aws-sdk-go-v2/service/iam"
	s3svc "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/synaccel/sentinel/internal/detect"
	"github.com/synaccel/sentinel/internal/respond"
	"github.com/synaccel/sentinel/internal/store"
)

func cmdRespond(args []string) {
	fs := flag.NewFlagSet("respond", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	dataDir := fs.String("data", "", "Data directory override")
	dryRun := fs.Bool("dry-run", false, "Record actions without executing them")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	logger := newLogger(cfg)
	ctx := context.Background()

	gw := store.NewGateway(cfg, logger)
	policy, err := gw.LoadPolicy()
	if err != nil {
		errorf("loading policy: %v", err)
	}

	awsCfg, err := detect.LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		errorf("%v", err)
	}
	clients := detect.NewClients(awsCfg)
	detectors := detect.Enabled(cfg, clients, logger)
	findings := detect.RunAll(ctx, detectors, logger)

	responders := []respond.Responder{
		respond.NewS3Responder(s3svc.NewFromConfig(awsCfg), *dryRun, logger),
		respond.NewIAMResponder(iamsvc.NewFromConfig(awsCfg), *dryRun, logger),
	}

	var records []respond.ActionRecord
	for _, r := range responders {
		records = append(records, r.Apply(ctx, policy, findings)...)
	}

	if parseFormat(*format) == FormatJSON {
		printJSON(os.Stdout, records)
		return
	}

	if len(records) == 0 {
		fmt.Printf("%s nothing to enforce: no flags set for the current findings\n", dim("·"))
		return
	}

	tbl := NewTable(os.Stdout, "RESPONDER", "ACTION", "TARGET", "STATUS", "DETAIL")
	failures := 0
	for _, rec := range records {
		status := string(rec.Status)
		switch rec.Status {
		case respond.StatusSuccess:
			status = green(status)
		case respond.StatusFailed:
			status = red(status)
			failures++
		case respond.StatusDryRun:
			status = cyan(status)
		case respond.StatusSkipped:
			status = yellow(status)
		}
		detail := rec.Detail
		if rec.Error != "" {
			detail = rec.Error
		}
		tbl.AddRow(rec.Responder, rec.Action, rec.Target, status, detail)
	}
	tbl.Render()

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "\n%s %d action(s) failed\n", red("✗"), failures)
		os.Exit(1)
	}
	if *dryRun {
		fmt.Printf("\n%s dry run: no AWS changes were made\n", cyan("·"))
	}
}
