package task

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/odvcencio/miser/pkg/errors"
)

// Task is one coding task to solve: a natural-language problem statement
// against a repository at a fixed base revision. Tasks are never mutated.
//
// Field names follow the benchmark interchange format so task files can be
// consumed without translation.
type Task struct {
	ID               string `json:"instance_id"`
	ProblemStatement string `json:"problem_statement"`
	Repo             string `json:"repo"`
	BaseCommit       string `json:"base_commit"`
}

// Validate checks the task is well-formed enough to solve.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "task is missing instance_id")
	}
	if strings.TrimSpace(t.ProblemStatement) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "problem statement is empty").
			WithContext("task", t.ID)
	}
	if strings.TrimSpace(t.Repo) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "task is missing repo").
			WithContext("task", t.ID)
	}
	if strings.TrimSpace(t.BaseCommit) == "" {
		return errors.New(errors.ErrCodeInvalidInput, "task is missing base_commit").
			WithContext("task", t.ID)
	}
	return nil
}

// LoadFile reads a single task from a JSON file.
func LoadFile(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing task file %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadJSONL reads up to limit tasks from a line-delimited JSON corpus.
// limit <= 0 means all.
func LoadJSONL(path string, limit int) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening task corpus: %w", err)
	}
	defer f.Close()

	var tasks []Task
	scanner := bufio.NewScanner(f)
	// Problem statements routinely exceed bufio's default 64KiB line cap.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var t Task
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return nil, fmt.Errorf("parsing task corpus %s line %d: %w", path, lineNo, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("task corpus %s line %d: %w", path, lineNo, err)
		}

		tasks = append(tasks, t)
		if limit > 0 && len(tasks) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading task corpus: %w", err)
	}

	return tasks, nil
}

// WriteJSONL writes tasks as line-delimited JSON, the same format LoadJSONL
// reads. Used to carve evaluation subsets out of a larger corpus.
func WriteJSONL(path string, tasks []Task) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating task subset: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range tasks {
		if err := enc.Encode(&tasks[i]); err != nil {
			return fmt.Errorf("encoding task %s: %w", tasks[i].ID, err)
		}
	}
	return w.Flush()
}
