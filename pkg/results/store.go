// Package results persists solve outcomes and turns them into evaluation
// artifacts: a queryable store, benchmark prediction files, and reports.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/odvcencio/miser/pkg/errors"
	"github.com/odvcencio/miser/pkg/patch"
	"github.com/odvcencio/miser/pkg/solver"
)

//go:embed schema.sql
var schemaSQL string

// Store persists solve results in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates or opens the results database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "creating database directory")
		}
	}
	if err := ensurePrivateFile(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "opening database")
	}

	// WAL allows concurrent readers while an evaluation run writes.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "configuring database")
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeStorageWrite, "initializing schema")
	}

	return &Store{db: db}, nil
}

// Results can include model patches and problem text; keep them private.
func ensurePrivateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "checking database file")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "creating database file")
	}
	return f.Close()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one result.
func (s *Store) Save(ctx context.Context, r *solver.Result) error {
	defects, err := json.Marshal(r.Defects)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "encoding defects")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (id, task_id, mode, model, budget, attempted,
			predicted_tokens, total_tokens, elapsed_ms, success, patch, defects, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.Mode, r.Model, r.Budget, r.Attempted,
		r.PredictedTokens, r.TotalTokens, r.Elapsed.Milliseconds(),
		boolToInt(r.Success), r.Patch, string(defects), r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "saving result").
			WithContext("task", r.TaskID)
	}
	return nil
}

// SaveAll persists results in one transaction.
func (s *Store) SaveAll(ctx context.Context, results []*solver.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "starting transaction")
	}
	defer tx.Rollback()

	for _, r := range results {
		defects, err := json.Marshal(r.Defects)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "encoding defects")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO results (id, task_id, mode, model, budget, attempted,
				predicted_tokens, total_tokens, elapsed_ms, success, patch, defects, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.TaskID, r.Mode, r.Model, r.Budget, r.Attempted,
			r.PredictedTokens, r.TotalTokens, r.Elapsed.Milliseconds(),
			boolToInt(r.Success), r.Patch, string(defects), r.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageWrite, "saving result").
				WithContext("task", r.TaskID)
		}
	}

	return tx.Commit()
}

// Get returns one result by id.
func (s *Store) Get(ctx context.Context, id string) (*solver.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, mode, model, budget, attempted, predicted_tokens,
			total_tokens, elapsed_ms, success, patch, defects, created_at
		FROM results WHERE id = ?`, id)

	result, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrCodeStorageRead, "result not found").
			WithContext("id", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "reading result")
	}
	return result, nil
}

// List returns the most recent results, optionally filtered by mode.
// limit <= 0 means all.
func (s *Store) List(ctx context.Context, mode string, limit int) ([]*solver.Result, error) {
	query := `
		SELECT id, task_id, mode, model, budget, attempted, predicted_tokens,
			total_tokens, elapsed_ms, success, patch, defects, created_at
		FROM results`
	var args []any
	if mode != "" {
		query += " WHERE mode = ?"
		args = append(args, mode)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "listing results")
	}
	defer rows.Close()

	var out []*solver.Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "scanning result")
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

// Summary aggregates stored results per mode.
type Summary struct {
	Mode         string  `json:"mode"`
	Tasks        int     `json:"tasks"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
	TotalTokens  int     `json:"total_tokens"`
	AvgTokens    float64 `json:"avg_tokens"`
	AvgAttempted float64 `json:"avg_attempted"`
}

// Summarize returns per-mode aggregates over all stored results.
func (s *Store) Summarize(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, COUNT(*), SUM(success), SUM(total_tokens),
			AVG(total_tokens), AVG(attempted)
		FROM results GROUP BY mode ORDER BY mode`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "summarizing results")
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Mode, &sum.Tasks, &sum.Successes,
			&sum.TotalTokens, &sum.AvgTokens, &sum.AvgAttempted); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "scanning summary")
		}
		if sum.Tasks > 0 {
			sum.SuccessRate = float64(sum.Successes) / float64(sum.Tasks)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanResult(row scannable) (*solver.Result, error) {
	var (
		r         solver.Result
		elapsedMS int64
		success   int
		defects   string
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.TaskID, &r.Mode, &r.Model, &r.Budget, &r.Attempted,
		&r.PredictedTokens, &r.TotalTokens, &elapsedMS, &success, &r.Patch,
		&defects, &createdAt); err != nil {
		return nil, err
	}

	r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	r.Success = success != 0
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = ts
	}

	if defects != "" && defects != "[]" {
		var parsed []patch.Defect
		if err := json.Unmarshal([]byte(defects), &parsed); err != nil {
			return nil, fmt.Errorf("decoding defects: %w", err)
		}
		r.Defects = parsed
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
