package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odvcencio/miser/pkg/config"
	"github.com/odvcencio/miser/pkg/patch"
	"github.com/odvcencio/miser/pkg/repository"
	"github.com/odvcencio/miser/pkg/task"
)

// runValidate checks a patch file for format defects, repairs what it can,
// and (when a task is given) dry-runs the result against the task's checkout.
func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to a miser config file")
	patchPath := fs.String("patch", "", "Path to the patch file (required)")
	taskPath := fs.String("task", "", "Task JSON file; enables a dry-run apply against its checkout")
	outPath := fs.String("out", "", "Write the repaired patch to this file")
	apply := fs.Bool("apply", false, "Really apply the patch, then hard-reset the checkout (requires --task)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *patchPath == "" {
		return fmt.Errorf("usage: miser validate --patch <file.diff> [flags]")
	}
	if *apply && *taskPath == "" {
		return fmt.Errorf("--apply requires --task")
	}

	data, err := os.ReadFile(*patchPath)
	if err != nil {
		return err
	}
	text := string(data)

	defects := patch.Check(text)
	if len(defects) > 0 {
		repaired, changed := patch.Repair(text)
		if changed {
			fmt.Println("Patch repaired:")
			for _, d := range defects {
				fmt.Printf("  fixed %s: %s\n", d.Kind, d.Message)
			}
			text = repaired
			defects = patch.Check(text)
		}
	}

	if len(defects) == 0 && *taskPath != "" {
		t, err := task.LoadFile(*taskPath)
		if err != nil {
			return err
		}
		cfg, err := config.Load(*configPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		repos := repository.NewManager(cfg.Repository.CacheDir, cfg.Repository.CloneTimeout)
		checkout, err := repos.Checkout(ctx, t.Repo, t.BaseCommit)
		if err != nil {
			return err
		}
		defects = checkout.DryRun(text)

		if *apply && len(defects) == 0 {
			if err := checkout.Apply(text); err != nil {
				return fmt.Errorf("applying patch: %w", err)
			}
			fmt.Printf("Patch applied cleanly in %s; resetting\n", checkout.Dir)
			if err := checkout.Reset(); err != nil {
				return fmt.Errorf("resetting checkout: %w", err)
			}
		}
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(text), 0644); err != nil {
			return fmt.Errorf("writing patch: %w", err)
		}
	}

	if len(defects) > 0 {
		for _, d := range defects {
			if d.File != "" {
				fmt.Printf("  %s (%s): %s\n", d.Kind, d.File, d.Message)
			} else {
				fmt.Printf("  %s: %s\n", d.Kind, d.Message)
			}
		}
		return fmt.Errorf("patch is not applicable (%d defects)", len(defects))
	}

	fmt.Println("✅ Patch is applicable")
	return nil
}
