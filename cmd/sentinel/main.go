package main

// ---------------------------------------------------------------------------
// main.go — command dispatcher for the sentinel CLI
//
// This file is intentionally slim. All command implementations live in
// their own files (cmd_*.go). Shared helpers are in helpers.go and
// output.go.
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
)

var (
	version   = "0.3.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--version", "-V":
			printVersion(os.Stdout)
			os.Exit(0)
		case "--help", "-h", "help":
			if len(os.Args) >= 3 {
				cmdHelp(os.Args[2])
			} else {
				printUsage(os.Stdout)
			}
			os.Exit(0)
		}
	}

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	subcmd := os.Args[1]
	args := os.Args[2:]

	// Handle -h / --help appended to any subcommand
	for _, a := range args {
		if a == "-h" || a == "--help" {
			cmdHelp(subcmd)
			os.Exit(0)
		}
	}

	switch subcmd {
	case "run":
		cmdRun(args)
	case "evaluate":
		cmdEvaluate(args)
	case "detect":
		cmdDetect(args)
	case "status":
		cmdStatus(args)
	case "policy":
		cmdPolicy(args)
	case "respond":
		cmdRespond(args)
	case "version":
		printVersion(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, red("error: ")+"unknown command %q\n\n", subcmd)
		if s := suggest(subcmd); s != "" {
			fmt.Fprintf(os.Stderr, "       Did you mean %s?\n\n", bold(s))
		}
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printVersion(w *os.File) {
	fmt.Fprintf(w, "sentinel %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printUsage(w *os.File) {
	fmt.Fprintf(w, `%s — adaptive AWS security posture loop

Usage:
  sentinel <command> [flags]

Commands:
  run        Detect across AWS and run one full evaluation cycle
  evaluate   Run one evaluation cycle over findings read from a file or stdin
  detect     Run the detectors and print findings without evaluating
  status     Show current counters, policy, and event log summary
  policy     Inspect or reset the escalation policy
  respond    Apply responders to current findings under the current policy
  version    Print version information
  help       Show help for a command

Environment:
  SENTINEL_CONFIG    Default config file path
  SENTINEL_DATA_DIR  Override for the data directory

Run 'sentinel help <command>' for command-specific flags.
`, bold("sentinel"))
}

func cmdHelp(subcmd string) {
	switch subcmd {
	case "run":
		fmt.Print(`Usage: sentinel run [flags]

Runs the enabled AWS detectors, merges their findings into the event log,
recomputes the 24h counters, escalates the policy where thresholds are met,
and writes the state, policy, and report atomically.

Flags:
  -config string   Config file path (default from SENTINEL_CONFIG)
  -data string     Data directory override
  -format string   Output format: table, json (default "table")
`)
	case "evaluate":
		fmt.Print(`Usage: sentinel evaluate [flags]

Runs one evaluation cycle over findings supplied as JSON lines, one finding
per line: {"category":"S3_PUBLIC","identity":"bucket-name"}. Reads stdin
unless -input names a file. No AWS calls are made.

Flags:
  -config string   Config file path
  -data string     Data directory override
  -input string    Findings file ("-" for stdin)
  -format string   Output format: table, json (default "table")
`)
	case "detect":
		fmt.Print(`Usage: sentinel detect [flags]

Runs the enabled detectors and prints their findings without touching the
event log or the policy.

Flags:
  -config string   Config file path
  -format string   Output format: table, json, ndjson (default "table")
  -only string     Comma-separated detector names (s3,iam,cloudtrail,guardduty)
`)
	case "status":
		fmt.Print(`Usage: sentinel status [flags]

Shows the persisted counters, the current policy flags, and the size of the
retained event log.

Flags:
  -config string   Config file path
  -data string     Data directory override
  -format string   Output format: table, json (default "table")
`)
	case "policy":
		fmt.Print(`Usage: sentinel policy <show|reset> [flags]

  show    Print the current policy document
  reset   Lower one enforcement flag (the explicit de-escalation path)

Flags:
  -config string     Config file path
  -data string       Data directory override
  -category string   Category to reset (reset only)
  -flag string       Flag to lower (reset only)
  -format string     Output format: table, json (default "table")
`)
	case "respond":
		fmt.Print(`Usage: sentinel respond [flags]

Runs the detectors, then applies the S3 and IAM responders to the resources
they surfaced, honoring the current policy flags. Use -dry-run to see what
would happen without touching AWS.

Flags:
  -config string   Config file path
  -data string     Data directory override
  -dry-run         Record actions without executing them
  -format string   Output format: table, json (default "table")
`)
	default:
		printUsage(os.Stdout)
	}
}
