package predictor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/miser/pkg/errors"
	"github.com/odvcencio/miser/pkg/features"
)

func leafTree(value float64) Tree {
	return Tree{
		ChildrenLeft:  []int{-1},
		ChildrenRight: []int{-1},
		Feature:       []int{-2},
		Threshold:     []float64{0},
		Value:         []float64{value},
	}
}

func writeArtifact(t *testing.T, artifact Artifact) string {
	t.Helper()
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "predictor.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func constantArtifact(value float64) Artifact {
	return Artifact{
		Version:      ArtifactVersion,
		FeatureNames: []string{"char_count", "word_count"},
		Clip:         Clip{Min: 500, Max: 3000},
		Scaler:       Scaler{Mean: []float64{0, 0}, Std: []float64{1, 1}},
		Forest:       []Tree{leafTree(value)},
	}
}

func TestLoadAndPredictConstant(t *testing.T) {
	path := writeArtifact(t, constantArtifact(1200))

	p, err := Load(path, 8)
	require.NoError(t, err)

	tokens, err := p.PredictTokens("fix the parser", features.DefaultRepoStats())
	require.NoError(t, err)
	assert.Equal(t, 1200, tokens)
}

func TestPredictClipsToRange(t *testing.T) {
	p, err := Load(writeArtifact(t, constantArtifact(50000)), 8)
	require.NoError(t, err)
	tokens, err := p.PredictTokens("anything", features.DefaultRepoStats())
	require.NoError(t, err)
	assert.Equal(t, 3000, tokens)

	p, err = Load(writeArtifact(t, constantArtifact(10)), 8)
	require.NoError(t, err)
	tokens, err = p.PredictTokens("anything", features.DefaultRepoStats())
	require.NoError(t, err)
	assert.Equal(t, 500, tokens)
}

func TestPredictWalksSplits(t *testing.T) {
	// Split on char_count: short statements go left, long ones go right.
	artifact := constantArtifact(0)
	artifact.Forest = []Tree{{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{0, -2, -2},
		Threshold:     []float64{20, 0, 0},
		Value:         []float64{0, 800, 1600},
	}}

	p, err := Load(writeArtifact(t, artifact), 8)
	require.NoError(t, err)

	tokens, err := p.PredictTokens("short one", features.DefaultRepoStats())
	require.NoError(t, err)
	assert.Equal(t, 800, tokens)

	tokens, err = p.PredictTokens("a considerably longer problem statement", features.DefaultRepoStats())
	require.NoError(t, err)
	assert.Equal(t, 1600, tokens)
}

func TestPredictAveragesForest(t *testing.T) {
	artifact := constantArtifact(0)
	artifact.Forest = []Tree{leafTree(1000), leafTree(2000)}

	p, err := Load(writeArtifact(t, artifact), 8)
	require.NoError(t, err)

	tokens, err := p.PredictTokens("anything", features.DefaultRepoStats())
	require.NoError(t, err)
	assert.Equal(t, 1500, tokens)
}

func TestPredictEmptyStatement(t *testing.T) {
	p, err := Load(writeArtifact(t, constantArtifact(1200)), 8)
	require.NoError(t, err)

	_, err = p.PredictTokens("   ", features.DefaultRepoStats())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestBudgetForThresholds(t *testing.T) {
	p, err := Load(writeArtifact(t, constantArtifact(1200)), 8)
	require.NoError(t, err)

	cases := map[int]int{
		500:  1,
		999:  1,
		1000: 3,
		1399: 3,
		1400: 5,
		1799: 5,
		1800: 8,
		3000: 8,
	}
	for tokens, want := range cases {
		assert.Equal(t, want, p.BudgetFor(tokens), "tokens=%d", tokens)
	}
}

func TestBudgetForHonorsCap(t *testing.T) {
	p, err := Load(writeArtifact(t, constantArtifact(1200)), 5)
	require.NoError(t, err)

	assert.Equal(t, 5, p.BudgetFor(2500))
	assert.Equal(t, 3, p.BudgetFor(1200))
}

func TestLoadRejectsBadArtifacts(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), 8)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelLoad))

	bad := constantArtifact(1200)
	bad.Scaler.Mean = []float64{0}
	_, err = Load(writeArtifact(t, bad), 8)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelLoad))

	bad = constantArtifact(1200)
	bad.Version = 99
	_, err = Load(writeArtifact(t, bad), 8)
	require.Error(t, err)

	bad = constantArtifact(1200)
	bad.Forest = nil
	_, err = Load(writeArtifact(t, bad), 8)
	require.Error(t, err)
}
