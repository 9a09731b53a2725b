package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Memory classes for context chunks.
const (
	ClassShortTerm = "short_term"
	ClassPromoted  = "promoted"
	ClassDiscarded = "discarded"
)

// Chunk is a transient piece of dialogue in the decaying context pool.
type Chunk struct {
	ID             string
	SessionID      string
	Text           string
	Domain         string
	MemoryClass    string
	RelevanceDecay float64
	LastDecayAt    int64
	SeenCount      int
	CreatedAt      int64
	LastAccessed   int64
}

const chunkColumns = `id, session_id, text, domain, memory_class, relevance_decay, last_decay_at,
	seen_count, created_at, last_accessed`

// InsertChunk persists a new chunk. relevance_decay starts at 1.0 and
// last_decay_at is anchored at creation time so the first decay period is
// measured from when the chunk was stored.
func (db *DB) InsertChunk(c *Chunk) error {
	now := time.Now().UnixMilli()
	if c.MemoryClass == "" {
		c.MemoryClass = ClassShortTerm
	}

	_, err := db.Exec(`
		INSERT INTO chunks (id, session_id, text, domain, memory_class, relevance_decay, last_decay_at, seen_count, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, 1.0, ?, 1, ?, ?)
	`, c.ID, c.SessionID, c.Text, c.Domain, c.MemoryClass, now, now, now)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}

	c.RelevanceDecay = 1.0
	c.LastDecayAt = now
	c.SeenCount = 1
	c.CreatedAt = now
	c.LastAccessed = now
	return nil
}

// GetChunk returns a chunk by id, or nil if not found.
func (db *DB) GetChunk(id string) (*Chunk, error) {
	row := db.QueryRow(`SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return c, nil
}

// LiveChunks returns all chunks that are still candidates for retrieval,
// optionally scoped to a session. Discarded chunks are excluded.
func (db *DB) LiveChunks(sessionID string) ([]Chunk, error) {
	var rows *sql.Rows
	var err error
	if sessionID == "" {
		rows, err = db.Query(`SELECT ` + chunkColumns + ` FROM chunks WHERE memory_class != 'discarded'`)
	} else {
		rows, err = db.Query(`SELECT `+chunkColumns+` FROM chunks WHERE memory_class != 'discarded' AND session_id = ?`, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("live chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// DecayableChunks returns short-term chunks; promoted chunks are exempt from
// decay and discarded chunks are already gone from retrieval.
func (db *DB) DecayableChunks() ([]Chunk, error) {
	rows, err := db.Query(`SELECT ` + chunkColumns + ` FROM chunks WHERE memory_class = 'short_term'`)
	if err != nil {
		return nil, fmt.Errorf("decayable chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// SetChunkDecay writes a new relevance_decay and decay anchor for a chunk.
func (db *DB) SetChunkDecay(id string, relevance float64, lastDecayAt int64) error {
	_, err := db.Exec(`UPDATE chunks SET relevance_decay = ?, last_decay_at = ? WHERE id = ?`, relevance, lastDecayAt, id)
	if err != nil {
		return fmt.Errorf("set chunk decay: %w", err)
	}
	return nil
}

// SetChunkClass updates the memory class of a chunk.
func (db *DB) SetChunkClass(id, class string) error {
	_, err := db.Exec(`UPDATE chunks SET memory_class = ? WHERE id = ?`, class, id)
	if err != nil {
		return fmt.Errorf("set chunk class: %w", err)
	}
	return nil
}

// TouchChunk records a retrieval of the chunk.
func (db *DB) TouchChunk(id string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chunks SET last_accessed = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("touch chunk: %w", err)
	}
	return nil
}

// BumpChunkSeen increments seen_count for a recurring claim and refreshes
// last_accessed. Returns the new count.
func (db *DB) BumpChunkSeen(id string) (int, error) {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE chunks SET seen_count = seen_count + 1, last_accessed = ? WHERE id = ?`, now, id)
	if err != nil {
		return 0, fmt.Errorf("bump chunk seen: %w", err)
	}
	var count int
	if err := db.QueryRow(`SELECT seen_count FROM chunks WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("read chunk seen: %w", err)
	}
	return count, nil
}

// DeleteChunk removes a chunk and its vector.
func (db *DB) DeleteChunk(id string) error {
	if err := db.DeleteChunkVector(id); err != nil {
		return fmt.Errorf("delete vector for chunk %s: %w", id, err)
	}
	_, err := db.Exec(`DELETE FROM chunks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chunk %s: %w", id, err)
	}
	return nil
}

// DeleteSessionChunks removes all chunks belonging to a session and returns
// how many were deleted. Promoted chunks are kept — their claims live on as
// facts and the chunk row documents the promotion.
func (db *DB) DeleteSessionChunks(sessionID string) (int, error) {
	rows, err := db.Query(`SELECT id FROM chunks WHERE session_id = ? AND memory_class != 'promoted'`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("list session chunks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := db.DeleteChunk(id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	err := row.Scan(&c.ID, &c.SessionID, &c.Text, &c.Domain, &c.MemoryClass,
		&c.RelevanceDecay, &c.LastDecayAt, &c.SeenCount, &c.CreatedAt, &c.LastAccessed)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}
