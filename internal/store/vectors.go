package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// FactVector holds an embedding for a fact.
type FactVector struct {
	FactID     int64
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// ChunkVector holds an embedding for a context chunk.
type ChunkVector struct {
	ChunkID    string
	Embedding  []float64
	Model      string
	Dimensions int
	CreatedAt  int64
}

// encodeEmbedding converts a []float64 to a binary BLOB (8 bytes per float64).
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*8)
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeEmbedding converts a binary BLOB back to []float64.
func decodeEmbedding(buf []byte) []float64 {
	n := len(buf) / 8
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vec
}

// SaveFactVector stores or replaces the embedding for a fact.
func (db *DB) SaveFactVector(factID int64, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)

	_, err := db.Exec(`
		INSERT INTO fact_vectors (fact_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fact_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, factID, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save fact vector: %w", err)
	}
	return nil
}

// GetFactVector returns the embedding for a fact, or nil if not found.
func (db *DB) GetFactVector(factID int64) (*FactVector, error) {
	var v FactVector
	var blob []byte

	err := db.QueryRow(`
		SELECT fact_id, embedding, model, dimensions, created_at
		FROM fact_vectors WHERE fact_id = ?
	`, factID).Scan(&v.FactID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get fact vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// AllFactVectors returns all stored fact embeddings.
func (db *DB) AllFactVectors() ([]FactVector, error) {
	rows, err := db.Query(`
		SELECT fact_id, embedding, model, dimensions, created_at
		FROM fact_vectors
	`)
	if err != nil {
		return nil, fmt.Errorf("all fact vectors: %w", err)
	}
	defer rows.Close()

	var records []FactVector
	for rows.Next() {
		var v FactVector
		var blob []byte
		if err := rows.Scan(&v.FactID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fact vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// SaveChunkVector stores or replaces the embedding for a chunk.
func (db *DB) SaveChunkVector(chunkID string, embedding []float64, model string) error {
	now := time.Now().UnixMilli()
	blob := encodeEmbedding(embedding)

	_, err := db.Exec(`
		INSERT INTO chunk_vectors (chunk_id, embedding, model, dimensions, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET embedding = ?, model = ?, dimensions = ?, created_at = ?
	`, chunkID, blob, model, len(embedding), now,
		blob, model, len(embedding), now)
	if err != nil {
		return fmt.Errorf("save chunk vector: %w", err)
	}
	return nil
}

// GetChunkVector returns the embedding for a chunk, or nil if not found.
func (db *DB) GetChunkVector(chunkID string) (*ChunkVector, error) {
	var v ChunkVector
	var blob []byte

	err := db.QueryRow(`
		SELECT chunk_id, embedding, model, dimensions, created_at
		FROM chunk_vectors WHERE chunk_id = ?
	`, chunkID).Scan(&v.ChunkID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk vector: %w", err)
	}
	v.Embedding = decodeEmbedding(blob)
	return &v, nil
}

// AllChunkVectors returns all stored chunk embeddings.
func (db *DB) AllChunkVectors() ([]ChunkVector, error) {
	rows, err := db.Query(`
		SELECT chunk_id, embedding, model, dimensions, created_at
		FROM chunk_vectors
	`)
	if err != nil {
		return nil, fmt.Errorf("all chunk vectors: %w", err)
	}
	defer rows.Close()

	var records []ChunkVector
	for rows.Next() {
		var v ChunkVector
		var blob []byte
		if err := rows.Scan(&v.ChunkID, &blob, &v.Model, &v.Dimensions, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk vector: %w", err)
		}
		v.Embedding = decodeEmbedding(blob)
		records = append(records, v)
	}
	return records, rows.Err()
}

// DeleteChunkVector removes the embedding for a chunk.
func (db *DB) DeleteChunkVector(chunkID string) error {
	_, err := db.Exec("DELETE FROM chunk_vectors WHERE chunk_id = ?", chunkID)
	if err != nil {
		return fmt.Errorf("delete chunk vector: %w", err)
	}
	return nil
}

// DeleteFactVector removes the embedding for a fact.
func (db *DB) DeleteFactVector(factID int64) error {
	_, err := db.Exec("DELETE FROM fact_vectors WHERE fact_id = ?", factID)
	if err != nil {
		return fmt.Errorf("delete fact vector: %w", err)
	}
	return nil
}
