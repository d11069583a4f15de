package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/odvcencio/miser/pkg/config"
	"github.com/odvcencio/miser/pkg/results"
)

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a miser config file")
	format := fs.String("format", "markdown", "Output format: markdown, csv, or xlsx")
	outPath := fs.String("out", "", "Output file (required for csv and xlsx)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	store, err := results.Open(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.Summarize(context.Background())
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No results recorded yet.")
		return nil
	}

	switch *format {
	case "markdown":
		fmt.Print(results.Markdown(summaries))
	case "csv":
		if *outPath == "" {
			return fmt.Errorf("csv format requires --out")
		}
		if err := results.WriteCSV(*outPath, summaries); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", *outPath)
	case "xlsx":
		if *outPath == "" {
			return fmt.Errorf("xlsx format requires --out")
		}
		if err := results.WriteXLSX(*outPath, summaries); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", *outPath)
	default:
		return fmt.Errorf("unknown format %q (want markdown, csv, or xlsx)", *format)
	}

	return nil
}
