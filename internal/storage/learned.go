package storage

import (
	"database/sql"
	"errors"
	"time"
)

// LearnedWindow is the per-model learned context window record.
// Field names match the persisted schema and are stable across storage
// engines.
type LearnedWindow struct {
	ModelName             string    `json:"model_name"`
	ObservedMaxTokens     int       `json:"observed_max_tokens"`
	CeilingObservations   int       `json:"ceiling_observations"`
	CompactionCount       int       `json:"compaction_count"`
	LastObservedMaxTokens int       `json:"last_observed_max_tokens"`
	LastUpdated           time.Time `json:"last_updated"`
	ConfidenceScore       float64   `json:"confidence_score"`
	FirstSeen             time.Time `json:"first_seen"`
	LastCompactionTotal   int       `json:"last_compaction_total"`
}

const learnedColumns = `model_name, observed_max_tokens, ceiling_observations,
	compaction_count, last_observed_max_tokens, last_updated,
	confidence_score, first_seen, last_compaction_total`

// dbtx is the statement surface shared by *DB and *Tx, so row operations
// run identically inside and outside a transaction.
type dbtx interface {
	QueryRow(query string, args ...any) *sql.Row
	Exec(query string, args ...any) (sql.Result, error)
}

// GetLearnedWindow returns the learned record for a model, or ErrNotFound.
func (db *DB) GetLearnedWindow(model string) (*LearnedWindow, error) {
	return getLearnedWindow(db, model)
}

// PutLearnedWindow writes the full record for a model. The single upsert
// statement commits atomically per row, so concurrent writers resolve to
// last-writer-wins without ever producing a torn record.
func (db *DB) PutLearnedWindow(w *LearnedWindow) error {
	return putLearnedWindow(db, w)
}

// UpdateLearnedWindow runs a read-modify-write on one model's record
// inside a single transaction, so an interleaved writer cannot slip
// between the read and the write. fn receives the current record, or nil
// when none exists, and returns the record to persist; returning nil
// persists nothing.
func (db *DB) UpdateLearnedWindow(model string, fn func(rec *LearnedWindow) (*LearnedWindow, error)) error {
	return db.WithTx(func(tx *Tx) error {
		rec, err := getLearnedWindow(tx, model)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		updated, err := fn(rec)
		if err != nil || updated == nil {
			return err
		}
		return putLearnedWindow(tx, updated)
	})
}

func getLearnedWindow(q dbtx, model string) (*LearnedWindow, error) {
	row := q.QueryRow(
		"SELECT "+learnedColumns+" FROM learned_windows WHERE model_name = ?",
		model,
	)
	return scanLearnedWindow(row)
}

func putLearnedWindow(q dbtx, w *LearnedWindow) error {
	_, err := q.Exec(`
		INSERT INTO learned_windows (`+learnedColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_name) DO UPDATE SET
			observed_max_tokens      = excluded.observed_max_tokens,
			ceiling_observations     = excluded.ceiling_observations,
			compaction_count         = excluded.compaction_count,
			last_observed_max_tokens = excluded.last_observed_max_tokens,
			last_updated             = excluded.last_updated,
			confidence_score         = excluded.confidence_score,
			first_seen               = excluded.first_seen,
			last_compaction_total    = excluded.last_compaction_total`,
		w.ModelName, w.ObservedMaxTokens, w.CeilingObservations,
		w.CompactionCount, w.LastObservedMaxTokens, w.LastUpdated,
		w.ConfidenceScore, w.FirstSeen, w.LastCompactionTotal,
	)
	return err
}

// DeleteLearnedWindow removes one model's learned record.
func (db *DB) DeleteLearnedWindow(model string) error {
	result, err := db.Exec("DELETE FROM learned_windows WHERE model_name = ?", model)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ResetAllLearnedWindows removes every learned record.
func (db *DB) ResetAllLearnedWindows() error {
	_, err := db.Exec("DELETE FROM learned_windows")
	return err
}

// ListLearnedWindows returns all learned records ordered by model name.
func (db *DB) ListLearnedWindows() ([]*LearnedWindow, error) {
	rows, err := db.Query("SELECT " + learnedColumns + " FROM learned_windows ORDER BY model_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []*LearnedWindow
	for rows.Next() {
		w, err := scanLearnedWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}

	return windows, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLearnedWindow(row rowScanner) (*LearnedWindow, error) {
	var w LearnedWindow
	err := row.Scan(
		&w.ModelName, &w.ObservedMaxTokens, &w.CeilingObservations,
		&w.CompactionCount, &w.LastObservedMaxTokens, &w.LastUpdated,
		&w.ConfidenceScore, &w.FirstSeen, &w.LastCompactionTotal,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
