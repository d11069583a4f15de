// Package predictor estimates how many completion tokens a task will need
// and maps that estimate onto a candidate budget.
package predictor

import (
	"encoding/json"
	"math"
	"os"
	"strings"

	"github.com/odvcencio/miser/pkg/errors"
	"github.com/odvcencio/miser/pkg/features"
)

// ArtifactVersion is the artifact schema this binary understands.
const ArtifactVersion = 1

// Artifact is the trained complexity model, exported to JSON by the training
// pipeline so inference needs no ML runtime.
type Artifact struct {
	Version      int      `json:"version"`
	FeatureNames []string `json:"feature_names"`
	UseLog       bool     `json:"use_log"`
	Clip         Clip     `json:"clip"`
	Scaler       Scaler   `json:"scaler"`
	Forest       []Tree   `json:"forest"`
}

// Clip bounds the raw regression output.
type Clip struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Scaler standardizes the feature vector the way the model was trained.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// Tree is one regression tree in flat-array form. Feature < 0 marks a leaf.
type Tree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []float64 `json:"value"`
}

// Predictor predicts completion-token complexity for a task.
type Predictor struct {
	artifact  *Artifact
	maxBudget int
}

// Load reads and validates a trained artifact from disk.
func Load(path string, maxBudget int) (*Predictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelLoad, "reading predictor artifact").
			WithContext("path", path)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelLoad, "parsing predictor artifact").
			WithContext("path", path)
	}
	if err := artifact.validate(); err != nil {
		return nil, err
	}

	if maxBudget < 1 {
		maxBudget = budgets[len(budgets)-1]
	}
	return &Predictor{artifact: &artifact, maxBudget: maxBudget}, nil
}

func (a *Artifact) validate() error {
	if a.Version != ArtifactVersion {
		return errors.New(errors.ErrCodeModelLoad, "unsupported artifact version").
			WithContext("version", a.Version)
	}
	if len(a.FeatureNames) == 0 {
		return errors.New(errors.ErrCodeModelLoad, "artifact has no feature names")
	}
	if len(a.Scaler.Mean) != len(a.FeatureNames) || len(a.Scaler.Std) != len(a.FeatureNames) {
		return errors.New(errors.ErrCodeModelLoad, "scaler dimensions do not match feature names")
	}
	if len(a.Forest) == 0 {
		return errors.New(errors.ErrCodeModelLoad, "artifact has an empty forest")
	}
	for i, tree := range a.Forest {
		n := len(tree.Feature)
		if n == 0 || len(tree.ChildrenLeft) != n || len(tree.ChildrenRight) != n ||
			len(tree.Threshold) != n || len(tree.Value) != n {
			return errors.New(errors.ErrCodeModelLoad, "malformed tree in forest").
				WithContext("tree", i)
		}
	}
	if a.Clip.Min <= 0 || a.Clip.Max <= a.Clip.Min {
		return errors.New(errors.ErrCodeModelLoad, "artifact clip range is invalid")
	}
	return nil
}

// PredictTokens estimates completion tokens for a problem statement. The
// result is always within the artifact's clip range.
func (p *Predictor) PredictTokens(statement string, stats features.RepoStats) (int, error) {
	if strings.TrimSpace(statement) == "" {
		return 0, errors.New(errors.ErrCodeInvalidInput, "cannot predict on an empty problem statement")
	}

	set := features.Extract(statement, stats)
	vec, err := set.Vector(p.artifact.FeatureNames)
	if err != nil {
		return 0, err
	}

	for i := range vec {
		std := p.artifact.Scaler.Std[i]
		if std == 0 {
			std = 1
		}
		vec[i] = (vec[i] - p.artifact.Scaler.Mean[i]) / std
	}

	sum := 0.0
	for i := range p.artifact.Forest {
		sum += p.artifact.Forest[i].predict(vec)
	}
	raw := sum / float64(len(p.artifact.Forest))

	if p.artifact.UseLog {
		raw = math.Expm1(raw)
	}
	raw = math.Min(math.Max(raw, p.artifact.Clip.Min), p.artifact.Clip.Max)

	return int(math.Round(raw)), nil
}

func (t *Tree) predict(vec []float64) float64 {
	node := 0
	for t.Feature[node] >= 0 {
		if vec[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

// Candidate budgets, smallest to largest. Boundary estimates land in the
// larger bucket.
var budgets = []int{1, 3, 5, 8}

var budgetThresholds = []int{1000, 1400, 1800}

// BudgetFor maps a token estimate onto a candidate budget, capped by the
// configured maximum.
func (p *Predictor) BudgetFor(predictedTokens int) int {
	n := budgets[len(budgets)-1]
	for i, threshold := range budgetThresholds {
		if predictedTokens < threshold {
			n = budgets[i]
			break
		}
	}
	if n > p.maxBudget {
		n = p.maxBudget
	}
	return n
}

// Allocate predicts token complexity and converts it into a budget.
func (p *Predictor) Allocate(statement string, stats features.RepoStats) (tokens, budget int, err error) {
	tokens, err = p.PredictTokens(statement, stats)
	if err != nil {
		return 0, 0, err
	}
	return tokens, p.BudgetFor(tokens), nil
}
