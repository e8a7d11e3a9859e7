// Package history keeps a durable per-step ledger of coupling results:
// eigenvalue, seed, measured power, and the applied normalization
// scale. The coordinator appends one row per depletion step.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Step is one ledger row.
type Step struct {
	Step          int
	RunID         string
	K             float64
	Seed          int64
	MeasuredPower float64
	Scale         float64
	CreatedAt     time.Time
}

// Store is the SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS steps (
	step           INTEGER NOT NULL,
	run_id         TEXT    NOT NULL,
	k              REAL    NOT NULL,
	seed           INTEGER NOT NULL,
	measured_power REAL    NOT NULL,
	scale          REAL    NOT NULL,
	created_at     TEXT    NOT NULL
);
`

// Open opens (creating if needed) the ledger at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize history ledger: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one completed step.
func (s *Store) Append(ctx context.Context, st Step) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (step, run_id, k, seed, measured_power, scale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.Step, st.RunID, st.K, st.Seed, st.MeasuredPower, st.Scale,
		st.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append history step %d: %w", st.Step, err)
	}
	return nil
}

// Steps returns all recorded steps in insertion order.
func (s *Store) Steps(ctx context.Context) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step, run_id, k, seed, measured_power, scale, created_at FROM steps ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query history steps: %w", err)
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var st Step
		var created string
		if err := rows.Scan(&st.Step, &st.RunID, &st.K, &st.Seed, &st.MeasuredPower, &st.Scale, &created); err != nil {
			return nil, err
		}
		st.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, st)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
