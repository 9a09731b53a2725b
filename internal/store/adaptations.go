package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Adaptation results.
const (
	AdaptPending  = "pending"
	AdaptImproved = "improved"
	AdaptDegraded = "degraded"
	AdaptNeutral  = "neutral"
)

// Adaptation is one tuned parameter change proposed by the adaptation loop.
// Baseline holds the JSON-encoded metrics snapshot taken at proposal time.
type Adaptation struct {
	ID         int64
	Parameter  string
	OldValue   float64
	NewValue   float64
	Reason     string
	Baseline   string
	Result     string
	CreatedAt  int64
	VerifiedAt *int64
}

// InsertAdaptation records a proposed parameter change with result pending.
func (db *DB) InsertAdaptation(a *Adaptation) error {
	now := time.Now().UnixMilli()
	if a.Result == "" {
		a.Result = AdaptPending
	}

	result, err := db.Exec(`
		INSERT INTO adaptations (parameter, old_value, new_value, reason, baseline, result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.Parameter, a.OldValue, a.NewValue, a.Reason, a.Baseline, a.Result, now)
	if err != nil {
		return fmt.Errorf("insert adaptation: %w", err)
	}

	id, _ := result.LastInsertId()
	a.ID = id
	a.CreatedAt = now
	return nil
}

// SetAdaptationResult marks the verification outcome of an adaptation.
func (db *DB) SetAdaptationResult(id int64, result string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE adaptations SET result = ?, verified_at = ? WHERE id = ?`, result, now, id)
	if err != nil {
		return fmt.Errorf("set adaptation result: %w", err)
	}
	return nil
}

// PendingAdaptations returns adaptations awaiting verification, oldest first.
func (db *DB) PendingAdaptations() ([]Adaptation, error) {
	rows, err := db.Query(`
		SELECT id, parameter, old_value, new_value, reason, baseline, result, created_at, verified_at
		FROM adaptations WHERE result = 'pending'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("pending adaptations: %w", err)
	}
	defer rows.Close()
	return scanAdaptations(rows)
}

// GetAdaptation returns an adaptation by id, or nil if not found.
func (db *DB) GetAdaptation(id int64) (*Adaptation, error) {
	row := db.QueryRow(`
		SELECT id, parameter, old_value, new_value, reason, baseline, result, created_at, verified_at
		FROM adaptations WHERE id = ?
	`, id)
	a, err := scanAdaptation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get adaptation: %w", err)
	}
	return a, nil
}

func scanAdaptation(row rowScanner) (*Adaptation, error) {
	var a Adaptation
	var verifiedAt sql.NullInt64
	err := row.Scan(&a.ID, &a.Parameter, &a.OldValue, &a.NewValue, &a.Reason, &a.Baseline,
		&a.Result, &a.CreatedAt, &verifiedAt)
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		a.VerifiedAt = &verifiedAt.Int64
	}
	return &a, nil
}

func scanAdaptations(rows *sql.Rows) ([]Adaptation, error) {
	var adaptations []Adaptation
	for rows.Next() {
		a, err := scanAdaptation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan adaptation: %w", err)
		}
		adaptations = append(adaptations, *a)
	}
	return adaptations, rows.Err()
}
