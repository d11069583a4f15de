package solver

import (
	"time"

	"github.com/odvcencio/miser/pkg/patch"
)

// Candidate is one generated patch and what validation made of it.
type Candidate struct {
	Index   int           `json:"index"`
	Patch   string        `json:"patch"`
	Verdict patch.Verdict `json:"verdict"`
	Tokens  int           `json:"tokens"`
}

// Result is the full outcome of solving one task.
type Result struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	Mode            string         `json:"mode"`
	Model           string         `json:"model"`
	Budget          int            `json:"budget"`
	Attempted       int            `json:"attempted"`
	PredictedTokens int            `json:"predicted_tokens"`
	TotalTokens     int            `json:"total_tokens"`
	Elapsed         time.Duration  `json:"elapsed"`
	Success         bool           `json:"success"`
	Patch           string         `json:"patch,omitempty"`
	Defects         []patch.Defect `json:"defects,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
