package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Turn is the persisted trace of one enforcement decision. The stored
// embedding is the turn's utterance vector, kept so the classifier can
// compute drift and entropy against recent turns in the same session.
type Turn struct {
	ID             int64
	SessionID      string
	Domain         string
	Confidence     float64
	Entropy        float64
	Drift          float64
	Overridden     bool
	ConflictReason string
	Degraded       bool
	Embedding      []float64
	CreatedAt      int64
}

// InsertTurn records a completed turn.
func (db *DB) InsertTurn(t *Turn) error {
	now := time.Now().UnixMilli()
	overridden := 0
	if t.Overridden {
		overridden = 1
	}
	degraded := 0
	if t.Degraded {
		degraded = 1
	}
	var blob []byte
	if len(t.Embedding) > 0 {
		blob = encodeEmbedding(t.Embedding)
	}

	result, err := db.Exec(`
		INSERT INTO turns (session_id, domain, confidence, entropy, drift, overridden, conflict_reason, degraded, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
	`, t.SessionID, t.Domain, t.Confidence, t.Entropy, t.Drift, overridden, t.ConflictReason, degraded, blob, now)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	id, _ := result.LastInsertId()
	t.ID = id
	t.CreatedAt = now
	return nil
}

// RecentTurns returns the most recent turns for a session, newest first.
func (db *DB) RecentTurns(sessionID string, limit int) ([]Turn, error) {
	rows, err := db.Query(`
		SELECT id, session_id, domain, confidence, entropy, drift, overridden, conflict_reason, degraded, embedding, created_at
		FROM turns WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var overridden, degraded int
		var reason sql.NullString
		var blob []byte
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Domain, &t.Confidence, &t.Entropy, &t.Drift,
			&overridden, &reason, &degraded, &blob, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Overridden = overridden != 0
		t.Degraded = degraded != 0
		t.ConflictReason = reason.String
		if len(blob) > 0 {
			t.Embedding = decodeEmbedding(blob)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// TurnDomainsSince returns the distinct domains of turns recorded since the
// cutoff timestamp.
func (db *DB) TurnDomainsSince(cutoff int64) ([]string, error) {
	rows, err := db.Query(`SELECT DISTINCT domain FROM turns WHERE created_at >= ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("turn domains: %w", err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan turn domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// TurnStats aggregates enforcement outcomes since the cutoff timestamp.
type TurnStats struct {
	Turns      int
	Overrides  int
	Conflicts  int
	Degraded   int
}

// TurnStatsSince computes override and conflict counts over a window.
func (db *DB) TurnStatsSince(cutoff int64) (*TurnStats, error) {
	var s TurnStats
	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(overridden), 0),
		       COALESCE(SUM(CASE WHEN conflict_reason IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(degraded), 0)
		FROM turns WHERE created_at >= ?
	`, cutoff).Scan(&s.Turns, &s.Overrides, &s.Conflicts, &s.Degraded)
	if err != nil {
		return nil, fmt.Errorf("turn stats: %w", err)
	}
	return &s, nil
}
