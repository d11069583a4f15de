package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odvcencio/miser/pkg/results"
	"github.com/odvcencio/miser/pkg/solver"
	"github.com/odvcencio/miser/pkg/task"
)

func runEvaluate(args []string) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a miser config file")
	tasksPath := fs.String("tasks", "", "Path to a task JSONL file (required)")
	limit := fs.Int("limit", 0, "Evaluate at most this many tasks (0 = all)")
	mode := fs.String("mode", "", "Solve mode: adaptive, baseline, or fixed (defaults to config)")
	fixedN := fs.Int("fixed-n", 0, "Candidate count for fixed mode (defaults to config)")
	concurrency := fs.Int("concurrency", 0, "Tasks solved in parallel (defaults to config)")
	predictions := fs.String("predictions", "", "Write a predictions JSONL file to this path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tasksPath == "" {
		return fmt.Errorf("usage: miser evaluate --tasks <file.jsonl> [flags]")
	}

	tasks, err := task.LoadJSONL(*tasksPath, *limit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks in %s", *tasksPath)
	}

	st, err := newSolveStack(*configPath, *mode, *fixedN)
	if err != nil {
		return err
	}
	defer st.Close()

	workers := st.cfg.Solver.EvalConcurrency
	if *concurrency > 0 {
		workers = *concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Evaluating %d tasks (mode=%s, concurrency=%d, run=%s)\n",
		len(tasks), st.cfg.Solver.Mode, workers, st.runID)

	evaluator := solver.NewEvaluator(st.solver, st.logger, workers)
	runResults, err := evaluator.Run(ctx, tasks)
	if err != nil {
		return err
	}

	store, err := results.Open(st.cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SaveAll(ctx, runResults); err != nil {
		return err
	}

	if *predictions != "" {
		name := "miser-" + st.cfg.Solver.Mode
		if err := results.WritePredictions(*predictions, runResults, name); err != nil {
			return err
		}
		fmt.Printf("Predictions written to %s\n", *predictions)
	}

	printEvalSummary(runResults)
	return nil
}

func printEvalSummary(runResults []*solver.Result) {
	var successes, totalTokens, totalAttempts int
	for _, r := range runResults {
		if r.Success {
			successes++
		}
		totalTokens += r.TotalTokens
		totalAttempts += r.Attempted
	}

	n := len(runResults)
	fmt.Printf("\nSolved %d/%d (%.1f%%)\n", successes, n, 100*float64(successes)/float64(n))
	fmt.Printf("  total tokens: %d (avg %.0f per task)\n", totalTokens, float64(totalTokens)/float64(n))
	fmt.Printf("  avg attempts: %.1f\n", float64(totalAttempts)/float64(n))
}
