package solver

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/miser/pkg/logging"
	"github.com/odvcencio/miser/pkg/task"
)

// Evaluator runs the solver over a task corpus with bounded concurrency.
// Each task gets its own checkout, so tasks never share working trees.
type Evaluator struct {
	solver      *Solver
	logger      *logging.Logger
	concurrency int
}

// NewEvaluator wraps a solver for batch evaluation.
func NewEvaluator(s *Solver, logger *logging.Logger, concurrency int) *Evaluator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Evaluator{solver: s, logger: logger, concurrency: concurrency}
}

// Run solves every task and returns results in task order. A failure on
// one task is recorded and does not stop the rest; only context
// cancellation aborts the run.
func (e *Evaluator) Run(ctx context.Context, tasks []task.Task) ([]*Result, error) {
	results := make([]*Result, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range tasks {
		i := i
		g.Go(func() error {
			result, err := e.solver.Solve(gctx, &tasks[i])
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				if e.logger != nil {
					e.logger.Error(logging.CategorySolver, "task_failed", err.Error(), map[string]any{
						"task": tasks[i].ID,
					})
				}
				result = &Result{
					ID:        ulid.Make().String(),
					TaskID:    tasks[i].ID,
					Mode:      e.solver.opts.Mode,
					Model:     e.solver.opts.Model,
					CreatedAt: time.Now(),
				}
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
