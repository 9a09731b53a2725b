package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Authority levels for facts.
const (
	AuthorityLongterm    = "longterm"
	AuthorityProvisional = "provisional"
)

// Fact types.
const (
	FactIdentity     = "identity"
	FactRelationship = "relationship"
	FactPreference   = "preference"
	FactEvent        = "event"
	FactOther        = "other"
)

// Fact is a durable atomic claim. At most one live fact exists per Key.
type Fact struct {
	ID           int64
	Key          string
	Value        FactValue
	Domain       string
	FactType     string
	Authority    string
	Confidence   float64
	Text         string
	AccessCount  int
	LastAccessed *int64
	CreatedAt    int64
	UpdatedAt    int64
}

const factColumns = `id, key, value_kind, value, domain, fact_type, authority, confidence, text,
	access_count, last_accessed, created_at, updated_at`

// InsertFact creates a new fact row. The caller is responsible for the
// one-live-fact-per-key invariant (enforced at the SQL level by the UNIQUE
// constraint on key).
func (db *DB) InsertFact(f *Fact) error {
	now := time.Now().UnixMilli()
	if f.FactType == "" {
		f.FactType = FactOther
	}
	if f.Authority == "" {
		f.Authority = AuthorityProvisional
	}
	payload, err := f.Value.encode()
	if err != nil {
		return fmt.Errorf("encode fact value: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO facts (key, value_kind, value, domain, fact_type, authority, confidence, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.Key, string(f.Value.Kind), payload, f.Domain, f.FactType, f.Authority, f.Confidence, f.Text, now, now)
	if err != nil {
		return fmt.Errorf("insert fact: %w", err)
	}

	id, _ := result.LastInsertId()
	f.ID = id
	f.CreatedAt = now
	f.UpdatedAt = now
	return nil
}

// UpdateFact replaces value, text, confidence, domain, fact_type and
// authority for an existing fact and bumps updated_at.
func (db *DB) UpdateFact(f *Fact) error {
	now := time.Now().UnixMilli()
	payload, err := f.Value.encode()
	if err != nil {
		return fmt.Errorf("encode fact value: %w", err)
	}

	_, err = db.Exec(`
		UPDATE facts SET value_kind = ?, value = ?, domain = ?, fact_type = ?, authority = ?,
			confidence = ?, text = ?, updated_at = ?
		WHERE id = ?
	`, string(f.Value.Kind), payload, f.Domain, f.FactType, f.Authority, f.Confidence, f.Text, now, f.ID)
	if err != nil {
		return fmt.Errorf("update fact: %w", err)
	}
	f.UpdatedAt = now
	return nil
}

// GetFactByKey returns the fact stored under key, or nil if none exists.
func (db *DB) GetFactByKey(key string) (*Fact, error) {
	row := db.QueryRow(`SELECT `+factColumns+` FROM facts WHERE key = ?`, key)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact by key: %w", err)
	}
	return f, nil
}

// GetFactByID returns a fact by its row id, or nil if not found.
func (db *DB) GetFactByID(id int64) (*Fact, error) {
	row := db.QueryRow(`SELECT `+factColumns+` FROM facts WHERE id = ?`, id)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact by id: %w", err)
	}
	return f, nil
}

// AllFacts returns every stored fact.
func (db *DB) AllFacts() ([]Fact, error) {
	rows, err := db.Query(`SELECT ` + factColumns + ` FROM facts ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("all facts: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// FactsByAuthority returns facts with the given authority level.
func (db *DB) FactsByAuthority(authority string) ([]Fact, error) {
	rows, err := db.Query(`SELECT `+factColumns+` FROM facts WHERE authority = ? ORDER BY key`, authority)
	if err != nil {
		return nil, fmt.Errorf("facts by authority: %w", err)
	}
	defer rows.Close()
	return scanFacts(rows)
}

// TouchFact records a successful retrieval: access_count increments and
// last_accessed advances. updated_at is left alone — it tracks writes.
func (db *DB) TouchFact(id int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE facts SET access_count = access_count + 1, last_accessed = ?
		WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch fact: %w", err)
	}
	return nil
}

// SetFactConfidence adjusts only the confidence of a fact. Used by the
// feedback path, never by the adaptation loop.
func (db *DB) SetFactConfidence(id int64, confidence float64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE facts SET confidence = ?, updated_at = ? WHERE id = ?`, confidence, now, id)
	if err != nil {
		return fmt.Errorf("set fact confidence: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*Fact, error) {
	var f Fact
	var kind, payload string
	var lastAccessed sql.NullInt64

	err := row.Scan(&f.ID, &f.Key, &kind, &payload, &f.Domain, &f.FactType, &f.Authority,
		&f.Confidence, &f.Text, &f.AccessCount, &lastAccessed, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	value, err := decodeValue(ValueKind(kind), payload)
	if err != nil {
		return nil, fmt.Errorf("fact %q: %w", f.Key, err)
	}
	f.Value = value
	if lastAccessed.Valid {
		f.LastAccessed = &lastAccessed.Int64
	}
	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]Fact, error) {
	var facts []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, *f)
	}
	return facts, rows.Err()
}
