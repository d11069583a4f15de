package main

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/odvcencio/miser/pkg/config"
	"github.com/odvcencio/miser/pkg/logging"
	"github.com/odvcencio/miser/pkg/model"
	"github.com/odvcencio/miser/pkg/predictor"
	"github.com/odvcencio/miser/pkg/repository"
	"github.com/odvcencio/miser/pkg/solver"
	"github.com/odvcencio/miser/pkg/telemetry"
)

// solveStack wires the full solve pipeline from configuration. It is shared
// by the solve and evaluate commands.
type solveStack struct {
	cfg     *config.Config
	runID   string
	logger  *logging.Logger
	hub     *telemetry.Hub
	tracing *telemetry.TracerProvider
	repos   *repository.Manager
	solver  *solver.Solver
}

// newSolveStack builds the stack. mode and fixedN override the configured
// values when non-zero.
func newSolveStack(configPath, mode string, fixedN int) (*solveStack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if mode != "" {
		cfg.Solver.Mode = mode
	}
	if fixedN > 0 {
		cfg.Solver.FixedN = fixedN
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	runID := ulid.Make().String()
	logger, err := logging.NewLogger(cfg.Logging.Dir, runID)
	if err != nil {
		return nil, err
	}
	logger.SetMinLevel(logging.Level(cfg.Logging.Level))

	st := &solveStack{
		cfg:    cfg,
		runID:  runID,
		logger: logger,
		hub:    telemetry.NewHub(),
	}

	if cfg.Telemetry.TracingEnabled {
		st.tracing, err = telemetry.NewTracerProvider("miser")
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	var allocator solver.Allocator
	if cfg.Solver.Mode == solver.ModeAdaptive {
		pred, err := predictor.Load(cfg.Predictor.ArtifactPath, cfg.Predictor.MaxBudget)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("loading predictor artifact: %w", err)
		}
		allocator = pred
	}

	client := model.NewClient(
		cfg.Generation.APIKey,
		cfg.Generation.BaseURL,
		cfg.Generation.Timeout,
		cfg.Generation.RequestsPerMinute,
	)
	generator := model.NewGenerator(
		client,
		cfg.Generation.Model,
		cfg.Generation.Temperature,
		cfg.Generation.MaxCompletionTokens,
	)

	st.repos = repository.NewManager(cfg.Repository.CacheDir, cfg.Repository.CloneTimeout)
	workspaces := solver.WorkspaceProviderFunc(func(ctx context.Context, repoName, baseCommit string) (solver.Workspace, error) {
		return st.repos.Checkout(ctx, repoName, baseCommit)
	})

	st.solver = solver.New(generator, allocator, workspaces, st.hub, st.logger, solver.Options{
		Mode:      cfg.Solver.Mode,
		Model:     cfg.Generation.Model,
		FixedN:    cfg.Solver.FixedN,
		EarlyStop: cfg.Solver.EarlyStopEnabled(),
	})

	return st, nil
}

func (st *solveStack) Close() {
	if st.tracing != nil {
		st.tracing.Shutdown(context.Background())
	}
	if st.hub != nil {
		st.hub.Close()
	}
	if st.logger != nil {
		st.logger.Close()
	}
}
