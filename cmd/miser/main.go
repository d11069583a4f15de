package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "solve":
		err = runSolve(args[1:])
	case "evaluate":
		err = runEvaluate(args[1:])
	case "validate":
		err = runValidate(args[1:])
	case "report":
		err = runReport(args[1:])
	case "serve":
		err = runServe(args[1:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`miser - adaptive inference-compute allocation for coding tasks

Usage: miser <command> [flags]

Commands:
  solve      Solve a single task from a JSON file
  evaluate   Run a batch of tasks from a JSONL file and record results
  validate   Check (and optionally repair) a patch file
  report     Summarize recorded results per mode
  serve      Serve results and live telemetry over HTTP
  version    Print version information

Run 'miser <command> -h' for command flags.
`)
}
