// Package features turns a problem statement into the numeric feature set
// the complexity predictor was trained on. Feature names must stay stable;
// the trained artifact addresses them by name.
package features

import (
	"regexp"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/odvcencio/miser/pkg/errors"
)

// RepoStats carries per-repository aggregates from the training corpus.
// When a repository was never seen in training, use Defaults.
type RepoStats struct {
	TaskCount     int
	AvgDifficulty float64
}

// DefaultRepoStats is used for repositories absent from the training corpus.
func DefaultRepoStats() RepoStats {
	return RepoStats{TaskCount: 1, AvgDifficulty: 2000}
}

// Set holds every extracted feature keyed by its training-time name.
type Set map[string]float64

var (
	filePattern      = regexp.MustCompile(`\.py\b`)
	tracebackPattern = regexp.MustCompile(`(?i)traceback`)
	errorPattern     = regexp.MustCompile(`(?i)\berror\b`)
	testPattern      = regexp.MustCompile(`(?i)\btest`)
)

// Extract computes the full feature set for a problem statement.
func Extract(statement string, stats RepoStats) Set {
	words := strings.Fields(statement)

	avgWordLen := 0.0
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len(w)
		}
		avgWordLen = float64(total) / float64(len(words))
	}

	fenceCount := strings.Count(statement, "```")

	set := Set{
		"char_count":          float64(len(statement)),
		"word_count":          float64(len(words)),
		"line_count":          float64(len(strings.Split(statement, "\n"))),
		"avg_word_length":     avgWordLen,
		"has_code_block":      boolFeature(fenceCount > 0),
		"code_block_count":    float64(fenceCount / 2),
		"has_traceback":       boolFeature(tracebackPattern.MatchString(statement)),
		"has_error":           boolFeature(errorPattern.MatchString(statement)),
		"file_mentions":       float64(len(filePattern.FindAllString(statement, -1))),
		"has_test":            boolFeature(testPattern.MatchString(statement)),
		"repo_task_count":     float64(stats.TaskCount),
		"repo_avg_difficulty": stats.AvgDifficulty,
		"token_count":         float64(CountTokens(statement)),
	}
	return set
}

// Vector orders the set by the artifact's feature names. An unknown name
// means the artifact and this binary disagree about the feature schema.
func (s Set) Vector(names []string) ([]float64, error) {
	vec := make([]float64, len(names))
	for i, name := range names {
		v, ok := s[name]
		if !ok {
			return nil, errors.New(errors.ErrCodeModelLoad, "artifact requests unknown feature").
				WithContext("feature", name)
		}
		vec[i] = v
	}
	return vec, nil
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// CountTokens counts tokens using the cl100k_base encoding. Falls back to a
// chars/4 estimate if the encoding cannot be loaded.
func CountTokens(text string) int {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoder = enc
		}
	})
	if encoder == nil {
		return len(text) / 4
	}
	return len(encoder.Encode(text, nil, nil))
}
