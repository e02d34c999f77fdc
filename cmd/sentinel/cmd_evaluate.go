package main

// ---------------------------------------------------------------------------
// cmd_evaluate.go — run one evaluation cycle over externally supplied findings
// ---------------------------------------------------------------------------

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/synaccel/sentinel/internal/core"
	"github.com/synaccel/sentinel/internal/notify"
	"github.com/synaccel/sentinel/internal/store"
)

func cmdEvaluate(args []string) {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file path")
	dataDir := fs.String("data", "", "Data directory override")
	input := fs.String("input", "-", "Findings file (JSON lines, \"-\" for stdin)")
	format := fs.String("format", "table", "Output format: table, json")
	fs.Parse(args)

	cfg := loadConfig(*configPath, *dataDir)
	logger := newLogger(cfg)

	var r io.Reader = os.Stdin
	if *input != "" && *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			errorf("opening findings file: %v", err)
		}
		defer f.Close()
		r = f
	}

	findings, err := readFindings(r)
	if err != nil {
		errorf("%v", err)
	}

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
	res, err := engine.RunCycle(context.Background(), findings)
	if err != nil {
		errorf("%v", err)
	}

	printCycleResult(res, parseFormat(*format))
}

// readFindings parses findings from JSON lines. Blank lines are skipped; a
// malformed line is an error so a truncated feed is noticed rather than
// silently half-ingested.
func readFindings(r io.Reader) ([]core.Finding, error) {
	var findings []core.Finding
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var f core.Finding
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("parsing finding on line %d: %w", line, err)
		}
		findings = append(findings, f)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return findings, nil
}
