// Package solver runs the adaptive generate-validate loop: allocate a
// candidate budget, generate patches one at a time, validate each against a
// checkout, and stop as soon as one is usable.
package solver

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/miser/pkg/errors"
	"github.com/odvcencio/miser/pkg/features"
	"github.com/odvcencio/miser/pkg/logging"
	"github.com/odvcencio/miser/pkg/model"
	"github.com/odvcencio/miser/pkg/patch"
	"github.com/odvcencio/miser/pkg/task"
	"github.com/odvcencio/miser/pkg/telemetry"
)

// Solve modes.
const (
	ModeAdaptive = "adaptive"
	ModeBaseline = "baseline"
	ModeFixed    = "fixed"
)

// Generator produces one candidate patch per call.
type Generator interface {
	GeneratePatch(ctx context.Context, t *task.Task) (string, model.Usage, error)
}

// Allocator turns a problem statement into a token estimate and a budget.
type Allocator interface {
	Allocate(statement string, stats features.RepoStats) (tokens, budget int, err error)
}

// WorkspaceProvider yields a clean checkout for a task's base commit.
type WorkspaceProvider interface {
	Workspace(ctx context.Context, repoName, baseCommit string) (Workspace, error)
}

// WorkspaceProviderFunc adapts a function to WorkspaceProvider.
type WorkspaceProviderFunc func(ctx context.Context, repoName, baseCommit string) (Workspace, error)

func (f WorkspaceProviderFunc) Workspace(ctx context.Context, repoName, baseCommit string) (Workspace, error) {
	return f(ctx, repoName, baseCommit)
}

// Options configures a Solver.
type Options struct {
	Mode      string
	Model     string
	FixedN    int
	EarlyStop bool
	Selection SelectionStrategy
	// RepoStats carries per-repo training aggregates for the predictor.
	RepoStats map[string]features.RepoStats
}

// Solver drives solve runs. Safe for concurrent use as long as the
// workspace provider hands distinct checkouts to distinct tasks.
type Solver struct {
	generator  Generator
	allocator  Allocator
	workspaces WorkspaceProvider
	hub        *telemetry.Hub
	logger     *logging.Logger
	opts       Options
}

// New builds a solver. allocator may be nil for baseline and fixed modes;
// hub and logger may be nil.
func New(generator Generator, allocator Allocator, workspaces WorkspaceProvider, hub *telemetry.Hub, logger *logging.Logger, opts Options) *Solver {
	if opts.Mode == "" {
		opts.Mode = ModeAdaptive
	}
	if opts.Mode == ModeFixed {
		// The fixed baseline always exhausts its budget.
		opts.EarlyStop = false
		if opts.Selection == nil {
			opts.Selection = LongestPatch{}
		}
	}
	if opts.Selection == nil {
		opts.Selection = FirstApplicable{}
	}
	if opts.FixedN < 1 {
		opts.FixedN = 10
	}

	return &Solver{
		generator:  generator,
		allocator:  allocator,
		workspaces: workspaces,
		hub:        hub,
		logger:     logger,
		opts:       opts,
	}
}

// Solve runs the full loop for one task. Infrastructure failures return an
// error; an exhausted budget returns a Result with Success false.
func (s *Solver) Solve(ctx context.Context, t *task.Task) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "solver.solve")
	defer span.End()
	span.SetAttributes(telemetry.AttrTaskID.String(t.ID))

	result := &Result{
		ID:        ulid.Make().String(),
		TaskID:    t.ID,
		Mode:      s.opts.Mode,
		Model:     s.opts.Model,
		CreatedAt: start,
	}

	s.publish(telemetry.EventSolveStarted, t.ID, map[string]any{"mode": s.opts.Mode})
	s.log(logging.LevelInfo, logging.CategorySolver, "solve_started", t.ID, "", map[string]any{"mode": s.opts.Mode})

	predicted, budget, err := s.allocate(t)
	if err != nil {
		telemetry.RecordError(ctx, err)
		s.log(logging.LevelError, logging.CategoryPredictor, "allocation_failed", t.ID, err.Error(), nil)
		return nil, err
	}
	result.PredictedTokens = predicted
	result.Budget = budget
	span.SetAttributes(telemetry.AttrBudget.Int(budget), telemetry.AttrPredictedToks.Int(predicted))
	s.publish(telemetry.EventBudgetPredicted, t.ID, map[string]any{
		"budget":           budget,
		"predicted_tokens": predicted,
	})

	s.publish(telemetry.EventCheckoutStarted, t.ID, map[string]any{"repo": t.Repo})
	workspace, err := s.workspaces.Workspace(ctx, t.Repo, t.BaseCommit)
	if err != nil {
		telemetry.RecordError(ctx, err)
		s.log(logging.LevelError, logging.CategoryRepository, "checkout_failed", t.ID, err.Error(), nil)
		return nil, err
	}
	s.publish(telemetry.EventCheckoutReady, t.ID, nil)

	pipeline := NewPipeline(workspace)

	var accepted []Candidate
	for i := 1; i <= budget; i++ {
		result.Attempted = i
		s.publish(telemetry.EventCandidateStarted, t.ID, map[string]any{"index": i})

		raw, usage, genErr := s.generator.GeneratePatch(ctx, t)
		result.TotalTokens += usage.TotalTokens
		recordTokens(usage.TotalTokens)
		s.publish(telemetry.EventTokenUsageUpdated, t.ID, map[string]any{"total_tokens": result.TotalTokens})

		if genErr != nil {
			if ctx.Err() != nil {
				return nil, genErr
			}
			defect := patch.Defect{Kind: patch.KindGenerationFailure, Message: genErr.Error()}
			result.Defects = append(result.Defects, defect)
			recordCandidate("failed")
			s.publish(telemetry.EventCandidateRejected, t.ID, map[string]any{
				"index":  i,
				"defect": string(defect.Kind),
			})
			s.log(logging.LevelWarn, logging.CategoryGeneration, "generation_failed", t.ID, genErr.Error(), map[string]any{"index": i})
			continue
		}

		final, verdict := pipeline.Validate(raw)
		if verdict.Repaired {
			recordRepair()
			s.publish(telemetry.EventPatchRepaired, t.ID, map[string]any{"index": i})
		}

		if !verdict.Applicable {
			result.Defects = append(result.Defects, verdict.Defects...)
			recordCandidate("rejected")
			s.reportRejection(t.ID, i, verdict.Defects)
			continue
		}

		accepted = append(accepted, Candidate{Index: i, Patch: final, Verdict: verdict, Tokens: usage.TotalTokens})
		recordCandidate("accepted")
		s.publish(telemetry.EventCandidateAccepted, t.ID, map[string]any{"index": i})

		if s.opts.EarlyStop {
			break
		}
	}

	if chosen := s.opts.Selection.Select(accepted); chosen != nil {
		result.Success = true
		result.Patch = chosen.Patch
	}
	result.Elapsed = time.Since(start)

	span.SetAttributes(
		telemetry.AttrAttempted.Int(result.Attempted),
		telemetry.AttrTotalTokens.Int(result.TotalTokens),
		telemetry.AttrSuccess.Bool(result.Success),
	)
	recordSolve(s.opts.Mode, result.Success)

	if result.Success {
		s.publish(telemetry.EventSolveCompleted, t.ID, map[string]any{
			"attempted":    result.Attempted,
			"total_tokens": result.TotalTokens,
		})
		s.log(logging.LevelInfo, logging.CategorySolver, "solve_completed", t.ID, "", map[string]any{
			"attempted":    result.Attempted,
			"total_tokens": result.TotalTokens,
		})
	} else {
		s.publish(telemetry.EventSolveFailed, t.ID, map[string]any{"attempted": result.Attempted})
		s.log(logging.LevelWarn, logging.CategorySolver, "solve_exhausted", t.ID, "no applicable candidate", map[string]any{
			"budget": budget,
		})
	}

	return result, nil
}

func (s *Solver) allocate(t *task.Task) (tokens, budget int, err error) {
	switch s.opts.Mode {
	case ModeBaseline:
		return 0, 1, nil
	case ModeFixed:
		return 0, s.opts.FixedN, nil
	default:
		if s.allocator == nil {
			return 0, 0, errors.New(errors.ErrCodeModelLoad, "adaptive mode requires a trained predictor")
		}
		return s.allocator.Allocate(t.ProblemStatement, s.repoStats(t.Repo))
	}
}

func (s *Solver) repoStats(repoName string) features.RepoStats {
	if stats, ok := s.opts.RepoStats[repoName]; ok {
		return stats
	}
	return features.DefaultRepoStats()
}

func (s *Solver) reportRejection(taskID string, index int, defects []patch.Defect) {
	kinds := make([]string, len(defects))
	for i, d := range defects {
		kinds[i] = string(d.Kind)

		if d.Kind == patch.KindPathEscape {
			s.publish(telemetry.EventPathEscapeRejected, taskID, map[string]any{
				"index": index,
				"path":  d.File,
			})
			s.log(logging.LevelWarn, logging.CategorySecurity, "path_escape_rejected", taskID, d.Message, map[string]any{
				"path": d.File,
			})
		}
	}

	s.publish(telemetry.EventCandidateRejected, taskID, map[string]any{
		"index":   index,
		"defects": kinds,
	})
	s.log(logging.LevelInfo, logging.CategoryValidation, "candidate_rejected", taskID, "", map[string]any{
		"index":   index,
		"defects": kinds,
	})
}

func (s *Solver) publish(eventType telemetry.EventType, taskID string, data map[string]any) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(telemetry.Event{Type: eventType, TaskID: taskID, Data: data})
}

func (s *Solver) log(level logging.Level, category logging.Category, eventType, taskID, message string, details map[string]any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(logging.Event{
		Level:     level,
		Category:  category,
		EventType: eventType,
		TaskID:    taskID,
		Message:   message,
		Details:   details,
	})
}
