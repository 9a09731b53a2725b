package store

import (
	"fmt"
	"time"
)

// Metric is a single timestamped observation, e.g. override_rate.
type Metric struct {
	ID        int64
	Name      string
	Value     float64
	CreatedAt int64
}

// RecordMetric appends an observation.
func (db *DB) RecordMetric(name string, value float64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`INSERT INTO metrics (name, value, created_at) VALUES (?, ?, ?)`, name, value, now)
	if err != nil {
		return fmt.Errorf("record metric: %w", err)
	}
	return nil
}

// MetricsSince returns observations of a named metric newer than the cutoff,
// oldest first.
func (db *DB) MetricsSince(name string, cutoff int64) ([]Metric, error) {
	rows, err := db.Query(`
		SELECT id, name, value, created_at FROM metrics
		WHERE name = ? AND created_at >= ?
		ORDER BY created_at
	`, name, cutoff)
	if err != nil {
		return nil, fmt.Errorf("metrics since: %w", err)
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.Name, &m.Value, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// MetricAverage returns the mean of a named metric over a window, and the
// number of observations it covers.
func (db *DB) MetricAverage(name string, cutoff int64) (float64, int, error) {
	var avg float64
	var count int
	err := db.QueryRow(`
		SELECT COALESCE(AVG(value), 0), COUNT(*) FROM metrics
		WHERE name = ? AND created_at >= ?
	`, name, cutoff).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("metric average: %w", err)
	}
	return avg, count, nil
}
