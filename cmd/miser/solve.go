package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/miser/pkg/results"
	"github.com/odvcencio/miser/pkg/solver"
	"github.com/odvcencio/miser/pkg/task"
)

func runSolve(args []string) error {
	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a miser config file")
	taskPath := fs.String("task", "", "Path to a task JSON file (required)")
	mode := fs.String("mode", "", "Solve mode: adaptive, baseline, or fixed (defaults to config)")
	fixedN := fs.Int("fixed-n", 0, "Candidate count for fixed mode (defaults to config)")
	outPath := fs.String("out", "", "Write the chosen patch to this file")
	apply := fs.Bool("apply", false, "Apply the chosen patch to the cached checkout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskPath == "" {
		return fmt.Errorf("usage: miser solve --task <file.json> [flags]")
	}

	t, err := task.LoadFile(*taskPath)
	if err != nil {
		return err
	}

	st, err := newSolveStack(*configPath, *mode, *fixedN)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := st.solver.Solve(ctx, t)
	if err != nil {
		return err
	}

	store, err := results.Open(st.cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Save(ctx, result); err != nil {
		return err
	}

	printResult(result)

	if !result.Success {
		return fmt.Errorf("no applicable patch within budget %d", result.Budget)
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(result.Patch), 0644); err != nil {
			return fmt.Errorf("writing patch: %w", err)
		}
		fmt.Printf("Patch written to %s\n", *outPath)
	}

	if *apply {
		checkout, err := st.repos.Checkout(ctx, t.Repo, t.BaseCommit)
		if err != nil {
			return err
		}
		if err := checkout.Apply(result.Patch); err != nil {
			return fmt.Errorf("applying patch: %w", err)
		}
		fmt.Printf("Patch applied in %s\n", checkout.Dir)
	}

	return nil
}

func printResult(r *solver.Result) {
	status := "❌ exhausted"
	if r.Success {
		status = "✅ solved"
	}
	fmt.Printf("%s  %s\n", status, r.TaskID)
	fmt.Printf("  mode:             %s\n", r.Mode)
	if r.PredictedTokens > 0 {
		fmt.Printf("  predicted tokens: %d\n", r.PredictedTokens)
	}
	fmt.Printf("  budget:           %d\n", r.Budget)
	fmt.Printf("  attempted:        %d\n", r.Attempted)
	fmt.Printf("  total tokens:     %d\n", r.TotalTokens)
	fmt.Printf("  elapsed:          %s\n", r.Elapsed.Round(time.Millisecond))
	for _, d := range r.Defects {
		fmt.Printf("  defect:           %s: %s\n", d.Kind, d.Message)
	}
}
