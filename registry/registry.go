// Package registry keeps a SQLite record of every attempted inversion run.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pthm-cable/seisinv/inversion"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		iterations INTEGER NOT NULL,
		final_error REAL,
		final_accuracy REAL,
		final_lr REAL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_accepted ON runs(run_id, accepted);
`

// Entry is one row of the runs table.
type Entry struct {
	ID            string
	RunID         string
	Attempt       int
	Index         int
	Seed          int64
	Status        string
	Reason        string
	Accepted      bool
	Iterations    int
	FinalError    float64
	FinalAccuracy float64
	FinalLR       float64
	CreatedAt     time.Time
}

// Registry is a SQLite-backed run log.
type Registry struct {
	db *sql.DB
}

// Open opens or creates the registry at path (":memory:" for tests).
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	// one connection keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Record inserts an entry, replacing any previous row with the same ID.
func (r *Registry) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, run_id, attempt, idx, seed, status, reason, accepted, iterations,
			 final_error, final_accuracy, final_lr, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Attempt, e.Index, e.Seed, e.Status, e.Reason, boolInt(e.Accepted), e.Iterations,
		e.FinalError, e.FinalAccuracy, e.FinalLR, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", e.ID, err)
	}
	return nil
}

// OnRun implements inversion.Observer.
func (r *Registry) OnRun(rec *inversion.RunRecord) error {
	return r.Record(context.Background(), Entry{
		ID:            rec.ID,
		RunID:         rec.RunID,
		Attempt:       rec.Attempt,
		Index:         rec.Index,
		Seed:          rec.Seed,
		Status:        rec.Status.String(),
		Reason:        string(rec.Reason),
		Accepted:      rec.Accepted,
		Iterations:    rec.Len(),
		FinalError:    rec.FinalError,
		FinalAccuracy: rec.FinalAccuracy,
		FinalLR:       rec.FinalLR,
	})
}

// List returns the entries of runID in attempt order, or all entries when runID is empty.
func (r *Registry) List(ctx context.Context, runID string) ([]Entry, error) {
	query := `SELECT id, run_id, attempt, idx, seed, status, reason, accepted, iterations,
		final_error, final_accuracy, final_lr, created_at FROM runs`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY run_id, attempt`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var accepted int
		var created int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Attempt, &e.Index, &e.Seed, &e.Status, &e.Reason, &accepted,
			&e.Iterations, &e.FinalError, &e.FinalAccuracy, &e.FinalLR, &created); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		e.Accepted = accepted != 0
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of attempted and accepted runs of runID.
func (r *Registry) Counts(ctx context.Context, runID string) (attempts, accepted int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(accepted), 0) FROM runs WHERE run_id = ?`, runID,
	).Scan(&attempts, &accepted)
	if err != nil {
		return 0, 0, fmt.Errorf("counting runs: %w", err)
	}
	return attempts, accepted, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
