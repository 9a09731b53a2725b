package store

import (
	"fmt"
	"time"
)

// Feedback signals.
const (
	SignalUseful = "useful"
	SignalWrong  = "wrong"
)

// Feedback target kinds.
const (
	TargetFact  = "fact"
	TargetChunk = "chunk"
)

// Feedback is a user signal about a stored fact or chunk.
type Feedback struct {
	ID         int64
	TargetKind string
	TargetID   string
	Signal     string
	Context    string
	CreatedAt  int64
}

// InsertFeedback records a feedback signal.
func (db *DB) InsertFeedback(f *Feedback) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO feedback (target_kind, target_id, signal, context, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), ?)
	`, f.TargetKind, f.TargetID, f.Signal, f.Context, now)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	f.CreatedAt = now
	return nil
}

// FeedbackCounts returns useful/wrong tallies for a target.
func (db *DB) FeedbackCounts(kind, id string) (useful, wrong int, err error) {
	err = db.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN signal = 'useful' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN signal = 'wrong' THEN 1 ELSE 0 END), 0)
		FROM feedback WHERE target_kind = ? AND target_id = ?
	`, kind, id).Scan(&useful, &wrong)
	if err != nil {
		return 0, 0, fmt.Errorf("feedback counts: %w", err)
	}
	return useful, wrong, nil
}
