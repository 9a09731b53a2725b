package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session tracks per-conversation activity so stale sessions can be pruned
// wholesale and recent turns can feed entropy/drift computation.
type Session struct {
	ID           int64
	SessionID    string
	StartedAt    int64
	LastActiveAt int64
	TurnCount    int
}

// TouchSession creates the session row if needed and advances its activity
// timestamp and turn count.
func (db *DB) TouchSession(sessionID string) (*Session, error) {
	now := time.Now().UnixMilli()

	var s Session
	err := db.QueryRow(`
		SELECT id, session_id, started_at, last_active_at, turn_count
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.ID, &s.SessionID, &s.StartedAt, &s.LastActiveAt, &s.TurnCount)
	if err == sql.ErrNoRows {
		result, err := db.Exec(`
			INSERT INTO sessions (session_id, started_at, last_active_at, turn_count)
			VALUES (?, ?, ?, 1)
		`, sessionID, now, now)
		if err != nil {
			return nil, fmt.Errorf("insert session: %w", err)
		}
		id, _ := result.LastInsertId()
		return &Session{ID: id, SessionID: sessionID, StartedAt: now, LastActiveAt: now, TurnCount: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	_, err = db.Exec(`
		UPDATE sessions SET last_active_at = ?, turn_count = turn_count + 1 WHERE id = ?
	`, now, s.ID)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	s.LastActiveAt = now
	s.TurnCount++
	return &s, nil
}

// GetSession returns a session by its session_id, or nil if not found.
func (db *DB) GetSession(sessionID string) (*Session, error) {
	var s Session
	err := db.QueryRow(`
		SELECT id, session_id, started_at, last_active_at, turn_count
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&s.ID, &s.SessionID, &s.StartedAt, &s.LastActiveAt, &s.TurnCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// StaleSessions returns session ids whose last activity is older than the
// cutoff timestamp.
func (db *DB) StaleSessions(cutoff int64) ([]string, error) {
	rows, err := db.Query(`SELECT session_id FROM sessions WHERE last_active_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSession removes a session row. Chunk cleanup is handled separately
// by DeleteSessionChunks so the caller can report per-session counts.
func (db *DB) DeleteSession(sessionID string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
