package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/ngAnzar/rpc/ports"
)

// BuildCache implements ports.BuildCache using SQLite.
type BuildCache struct {
	db *DB
}

// NewBuildCache creates a build cache over a migrated database.
func NewBuildCache(db *DB) *BuildCache {
	return &BuildCache{db: db}
}

// Close closes the underlying database.
func (c *BuildCache) Close() error {
	return c.db.Close()
}

// Digest returns the digest last written for path.
func (c *BuildCache) Digest(ctx context.Context, path string) (string, bool, error) {
	var digest string
	err := c.db.QueryRowContext(ctx, `SELECT digest FROM outputs WHERE path = ?`, path).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return digest, true, nil
}

// Record stores the digest of path, replacing an older one.
func (c *BuildCache) Record(ctx context.Context, runID, path, digest string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO outputs (path, digest, run_id, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(path) DO UPDATE SET
			digest = excluded.digest,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`, path, digest, runID)
	return err
}

// BeginRun inserts a run row.
func (c *BuildCache) BeginRun(ctx context.Context, run ports.Run) error {
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO runs (id, inputs, started_at)
		VALUES (?, ?, ?)
	`, run.ID, string(inputs), run.StartedAt.UTC())
	return err
}

// FinishRun stores the outcome of a run started with BeginRun.
func (c *BuildCache) FinishRun(ctx context.Context, run ports.Run) error {
	result, err := c.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, written = ?, skipped = ?, error = ?
		WHERE id = ?
	`, run.FinishedAt.UTC(), run.Written, run.Skipped, run.Error, run.ID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit <= 0 returns all.
func (c *BuildCache) Runs(ctx context.Context, limit int) ([]ports.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, inputs, started_at, finished_at, written, skipped, error
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ports.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (ports.Run, error) {
	var run ports.Run
	var inputs string
	var finished sql.NullTime

	err := rows.Scan(&run.ID, &inputs, &run.StartedAt, &finished, &run.Written, &run.Skipped, &run.Error)
	if err != nil {
		return ports.Run{}, err
	}
	if err := json.Unmarshal([]byte(inputs), &run.Inputs); err != nil {
		return ports.Run{}, fmt.Errorf("decode inputs of run %s: %w", run.ID, err)
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}

// Ensure interface compliance.
var _ ports.BuildCache = (*BuildCache)(nil)
