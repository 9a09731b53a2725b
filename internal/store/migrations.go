package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "facts: canonical fact store",
		SQL: `
CREATE TABLE facts (
    id            INTEGER PRIMARY KEY,
    key           TEXT NOT NULL UNIQUE,
    value_kind    TEXT NOT NULL CHECK (value_kind IN ('string', 'number', 'date', 'list')),
    value         TEXT NOT NULL,
    domain        TEXT NOT NULL,
    fact_type     TEXT NOT NULL CHECK (fact_type IN ('identity', 'relationship', 'preference', 'event', 'other')),
    authority     TEXT NOT NULL CHECK (authority IN ('longterm', 'provisional')),
    confidence    REAL NOT NULL,
    text          TEXT NOT NULL,

    access_count  INTEGER NOT NULL DEFAULT 0,
    last_accessed INTEGER,
    created_at    INTEGER NOT NULL,
    updated_at    INTEGER NOT NULL
);

CREATE INDEX idx_facts_domain    ON facts(domain);
CREATE INDEX idx_facts_authority ON facts(authority);
`,
	},
	{
		Version:     2,
		Description: "fact_vectors: embeddings for fact semantic search",
		SQL: `
CREATE TABLE fact_vectors (
    fact_id    INTEGER PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (fact_id) REFERENCES facts(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     3,
		Description: "chunks: decaying context pool",
		SQL: `
CREATE TABLE chunks (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL,
    text            TEXT NOT NULL,
    domain          TEXT NOT NULL,
    memory_class    TEXT NOT NULL DEFAULT 'short_term' CHECK (memory_class IN ('short_term', 'promoted', 'discarded')),

    -- Decay
    relevance_decay REAL NOT NULL DEFAULT 1.0,
    last_decay_at   INTEGER NOT NULL,

    -- Promotion
    seen_count      INTEGER NOT NULL DEFAULT 1,

    created_at      INTEGER NOT NULL,
    last_accessed   INTEGER NOT NULL
);

CREATE INDEX idx_chunks_session   ON chunks(session_id);
CREATE INDEX idx_chunks_class     ON chunks(memory_class);
CREATE INDEX idx_chunks_relevance ON chunks(relevance_decay);
`,
	},
	{
		Version:     4,
		Description: "chunk_vectors: embeddings for chunk semantic search",
		SQL: `
CREATE TABLE chunk_vectors (
    chunk_id   TEXT PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (chunk_id) REFERENCES chunks(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     5,
		Description: "sessions: conversation session activity tracking",
		SQL: `
CREATE TABLE sessions (
    id             INTEGER PRIMARY KEY,
    session_id     TEXT NOT NULL UNIQUE,
    started_at     INTEGER NOT NULL,
    last_active_at INTEGER NOT NULL,
    turn_count     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_sessions_active ON sessions(last_active_at DESC);
`,
	},
	{
		Version:     6,
		Description: "turns: per-turn enforcement trace with domain embedding",
		SQL: `
CREATE TABLE turns (
    id              INTEGER PRIMARY KEY,
    session_id      TEXT NOT NULL,
    domain          TEXT NOT NULL,
    confidence      REAL NOT NULL,
    entropy         REAL NOT NULL,
    drift           REAL NOT NULL,
    overridden      INTEGER NOT NULL DEFAULT 0,
    conflict_reason TEXT,
    degraded        INTEGER NOT NULL DEFAULT 0,
    embedding       BLOB,
    created_at      INTEGER NOT NULL
);

CREATE INDEX idx_turns_session ON turns(session_id, created_at DESC);
CREATE INDEX idx_turns_created ON turns(created_at DESC);
`,
	},
	{
		Version:     7,
		Description: "metrics: timestamped observations for the adaptation loop",
		SQL: `
CREATE TABLE metrics (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    value      REAL NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_metrics_name ON metrics(name, created_at DESC);
`,
	},
	{
		Version:     8,
		Description: "adaptations: tuned parameter changes",
		SQL: `
CREATE TABLE adaptations (
    id          INTEGER PRIMARY KEY,
    parameter   TEXT NOT NULL,
    old_value   REAL NOT NULL,
    new_value   REAL NOT NULL,
    reason      TEXT NOT NULL,
    baseline    TEXT NOT NULL,
    result      TEXT NOT NULL DEFAULT 'pending' CHECK (result IN ('pending', 'improved', 'degraded', 'neutral')),
    created_at  INTEGER NOT NULL,
    verified_at INTEGER
);

CREATE INDEX idx_adaptations_result ON adaptations(result);
`,
	},
	{
		Version:     9,
		Description: "feedback: user signals on facts and chunks",
		SQL: `
CREATE TABLE feedback (
    id          INTEGER PRIMARY KEY,
    target_kind TEXT NOT NULL CHECK (target_kind IN ('fact', 'chunk')),
    target_id   TEXT NOT NULL,
    signal      TEXT NOT NULL CHECK (signal IN ('useful', 'wrong')),
    context     TEXT,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_feedback_target ON feedback(target_kind, target_id);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
