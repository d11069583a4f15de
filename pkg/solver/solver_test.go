package solver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/miser/pkg/features"
	"github.com/odvcencio/miser/pkg/model"
	"github.com/odvcencio/miser/pkg/patch"
	"github.com/odvcencio/miser/pkg/task"
	"github.com/odvcencio/miser/pkg/telemetry"
)

const validPatch = `diff --git a/app.py b/app.py
--- a/app.py
+++ b/app.py
@@ -1,3 +1,3 @@
 line one
-line two
+line 2
 line three
`

var testTask = task.Task{
	ID:               "django__django-11099",
	ProblemStatement: "UsernameValidator allows trailing newline in usernames",
	Repo:             "django/django",
	BaseCommit:       "d26b2424437dabeeca94d7900b37d2df4410da0c",
}

type genStep struct {
	patch  string
	tokens int
	err    error
}

type scriptedGenerator struct {
	script []genStep
	calls  int
}

func (g *scriptedGenerator) GeneratePatch(ctx context.Context, t *task.Task) (string, model.Usage, error) {
	if g.calls >= len(g.script) {
		return "", model.Usage{}, errors.New("generator script exhausted")
	}
	step := g.script[g.calls]
	g.calls++
	return step.patch, model.Usage{TotalTokens: step.tokens}, step.err
}

type stubAllocator struct {
	tokens int
	budget int
}

func (a stubAllocator) Allocate(statement string, stats features.RepoStats) (int, int, error) {
	return a.tokens, a.budget, nil
}

// openWorkspace accepts anything that parses; applyWorkspace behavior is
// format-driven in these tests.
type openWorkspace struct{}

func (openWorkspace) DryRun(patchText string) []patch.Defect {
	if _, err := patch.Parse(patchText); err != nil {
		return []patch.Defect{{Kind: patch.KindDiffParse, Message: err.Error()}}
	}
	return nil
}

type conflictWorkspace struct{}

func (conflictWorkspace) DryRun(patchText string) []patch.Defect {
	return []patch.Defect{{Kind: patch.KindApplyConflict, Message: "hunk does not match", File: "app.py"}}
}

func provider(w Workspace) WorkspaceProvider {
	return WorkspaceProviderFunc(func(ctx context.Context, repoName, baseCommit string) (Workspace, error) {
		return w, nil
	})
}

func TestSolveEarlyStopAfterFirstApplicable(t *testing.T) {
	gen := &scriptedGenerator{script: []genStep{
		{patch: "I cannot produce a patch for this issue.", tokens: 400},
		{patch: validPatch, tokens: 700},
		{patch: validPatch, tokens: 9999},
	}}

	s := New(gen, stubAllocator{tokens: 1250, budget: 3}, provider(openWorkspace{}), nil, nil, Options{
		Mode:      ModeAdaptive,
		EarlyStop: true,
	})

	result, err := s.Solve(context.Background(), &testTask)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Budget)
	assert.Equal(t, 1250, result.PredictedTokens)
	assert.Equal(t, 2, result.Attempted, "loop must stop at the first applicable candidate")
	assert.Equal(t, 1100, result.TotalTokens, "tokens count attempted candidates only")
	assert.Equal(t, validPatch, result.Patch, "a clean candidate passes through byte-identical")
	assert.NotEmpty(t, result.Defects)
	assert.Equal(t, 2, gen.calls)
}

func TestSolveExhaustedBudget(t *testing.T) {
	gen := &scriptedGenerator{script: []genStep{
		{patch: "nope", tokens: 100},
		{patch: "still nope", tokens: 100},
		{patch: "never a diff", tokens: 100},
	}}

	s := New(gen, stubAllocator{tokens: 1500, budget: 3}, provider(openWorkspace{}), nil, nil, Options{
		Mode:      ModeAdaptive,
		EarlyStop: true,
	})

	result, err := s.Solve(context.Background(), &testTask)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.Patch)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 300, result.TotalTokens)
	assert.NotEmpty(t, result.Defects)
}

func TestSolveGenerationFailureContinues(t *testing.T) {
	gen := &scriptedGenerator{script: []genStep{
		{err: errors.New("connection reset"), tokens: 0},
		{patch: validPatch, tokens: 800},
	}}

	s := New(gen, stubAllocator{tokens: 1250, budget: 3}, provider(openWorkspace{}), nil, nil, Options{
		Mode:      ModeAdaptive,
		EarlyStop: true,
	})

	result, err := s.Solve(context.Background(), &testTask)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 800, result.TotalTokens)

	require.NotEmpty(t, result.Defects)
	assert.Equal(t, patch.KindGenerationFailure, result.Defects[0].Kind)
}

func TestSolveBaselineMode(t *testing.T) {
	gen := &scriptedGenerator{script: []genStep{
		{patch: validPatch, tokens: 500},
	}}

	s := New(gen, nil, provider(openWorkspace{}), nil, nil, Options{
		Mode:      ModeBaseline,
		EarlyStop: true,
	})

	result, err := s.Solve(context.Background(), &testTask)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Budget)
	assert.Equal(t, 0, result.PredictedTokens)
	assert.True(t, result.Success)
}

func TestSolveFixedModeExhaustsBudget(t *testing.T) {
	longer := strings.Replace(validPatch, "+line 2", "+line 2  # a noticeably longer replacement", 1)
	gen := &scriptedGenerator{script: []genStep{
		{patch: validPatch, tokens: 100},
		{patch: longer, tokens: 100},
		{patch: validPatch, tokens: 100},
	}}

	s := New(gen, nil, provider(openWorkspace{}), nil, nil, Options{
		Mode:      ModeFixed,
		FixedN:    3,
		EarlyStop: true, // ignored in fixed mode
	})

	result, err := s.Solve(context.Background(), &testTask)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Attempted, "fixed mode never stops early")
	assert.Equal(t, 300, result.TotalTokens)
	assert.True(t, result.Success)
	assert.Contains(t, result.Patch, "noticeably longer", "fixed mode picks the longest applicable patch")
}

func TestSolveApplyConflictRejectsCandidate(t *testing.T) {
	gen := &scriptedGenerator{script: []genStep{
		{patch: validPatch, tokens: 100},
	}}

	s := New(gen, nil, provider(conflictWorkspace{}), nil, nil, Options{
		Mode:      ModeBaseline,
		EarlyStop: true,
	})

	result, err := s.Solve(context.Background(), &testTask)
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Defects)
	assert.Equal(t, patch.KindApplyConflict, result.Defects[0].Kind)
}

func TestSolveAdaptiveRequiresAllocator(t *testing.T) {
	s := New(&scriptedGenerator{}, nil, provider(openWorkspace{}), nil, nil, Options{Mode: ModeAdaptive})

	_, err := s.Solve(context.Background(), &testTask)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predictor")
}

func TestSolveRejectsInvalidTask(t *testing.T) {
	s := New(&scriptedGenerator{}, nil, provider(openWorkspace{}), nil, nil, Options{Mode: ModeBaseline})

	bad := testTask
	bad.ProblemStatement = ""
	_, err := s.Solve(context.Background(), &bad)
	require.Error(t, err)
}

func TestSolvePublishesTelemetry(t *testing.T) {
	hub := telemetry.NewHub()
	defer hub.Close()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	gen := &scriptedGenerator{script: []genStep{
		{patch: validPatch, tokens: 500},
	}}
	s := New(gen, stubAllocator{tokens: 900, budget: 1}, provider(openWorkspace{}), hub, nil, Options{
		Mode:      ModeAdaptive,
		EarlyStop: true,
	})

	_, err := s.Solve(context.Background(), &testTask)
	require.NoError(t, err)

	seen := map[telemetry.EventType]bool{}
	for len(ch) > 0 {
		seen[(<-ch).Type] = true
	}

	assert.True(t, seen[telemetry.EventSolveStarted])
	assert.True(t, seen[telemetry.EventBudgetPredicted])
	assert.True(t, seen[telemetry.EventCandidateStarted])
	assert.True(t, seen[telemetry.EventCandidateAccepted])
	assert.True(t, seen[telemetry.EventSolveCompleted])
}
