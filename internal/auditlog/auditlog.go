// Package auditlog persists per-paper outcomes to a local SQLite database so
// past runs can be inspected after the fact.
package auditlog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/JakeFAU/arxiv-harvest/internal/pipeline"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// Open opens or creates the audit database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS outcomes (
			run_id TEXT NOT NULL,
			paper_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			versions INTEGER NOT NULL,
			expected_versions INTEGER NOT NULL,
			size_before INTEGER NOT NULL,
			size_after INTEGER NOT NULL,
			reference_count INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			error TEXT,
			finished_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
		CREATE INDEX IF NOT EXISTS idx_outcomes_paper ON outcomes(paper_id);
	`
	_, err := db.Exec(schema)
	return err
}

// Record appends one outcome under runID.
func (d *DB) Record(runID string, out pipeline.Outcome) error {
	var errText sql.NullString
	if out.Err != nil {
		errText = sql.NullString{String: out.Err.Error(), Valid: true}
	}

	_, err := d.db.Exec(`
		INSERT INTO outcomes (
			run_id, paper_id, kind, versions, expected_versions,
			size_before, size_after, reference_count, elapsed_ms, error, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID, out.ID.String(), string(out.Kind), out.Versions, out.ExpectedVersions,
		out.SizeBefore, out.SizeAfter, out.References,
		out.Elapsed.Milliseconds(), errText, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording outcome %s: %w", out.ID, err)
	}
	return nil
}

// RunSummary aggregates one run's recorded outcomes by kind.
type RunSummary struct {
	RunID  string
	Counts map[string]int
	Total  int
}

// Summarize returns per-kind outcome counts for the most recent runs, newest
// first.
func (d *DB) Summarize(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.Query(`
		SELECT run_id, kind, COUNT(*)
		FROM outcomes
		WHERE run_id IN (
			SELECT run_id FROM outcomes
			GROUP BY run_id
			ORDER BY MAX(finished_at) DESC
			LIMIT ?
		)
		GROUP BY run_id, kind
		ORDER BY MAX(finished_at) DESC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("summarizing runs: %w", err)
	}
	defer rows.Close()

	byRun := make(map[string]*RunSummary)
	var order []string
	for rows.Next() {
		var runID, kind string
		var count int
		if err := rows.Scan(&runID, &kind, &count); err != nil {
			return nil, err
		}
		s, ok := byRun[runID]
		if !ok {
			s = &RunSummary{RunID: runID, Counts: make(map[string]int)}
			byRun[runID] = s
			order = append(order, runID)
		}
		s.Counts[kind] += count
		s.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries := make([]RunSummary, 0, len(order))
	for _, runID := range order {
		summaries = append(summaries, *byRun[runID])
	}
	return summaries, nil
}

// CountByKind returns how many outcomes of kind were recorded for runID.
func (d *DB) CountByKind(runID, kind string) (int, error) {
	var count int
	err := d.db.QueryRow(
		"SELECT COUNT(*) FROM outcomes WHERE run_id = ? AND kind = ?",
		runID, kind,
	).Scan(&count)
	return count, err
}
