// Package db persists sensor snapshots and the prediction audit log.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"krishimitra/predict"
)

// ErrNotFound is returned when a device has no stored snapshot.
var ErrNotFound = errors.New("no sensor data found")

// Snapshot is the latest telemetry reported by one device, keyed by field
// name the way the device sends it.
type Snapshot map[string]any

// PredictionRow is one entry of the audit log.
type PredictionRow struct {
	ID        int64           `json:"id"`
	Model     string          `json:"model"`
	Features  json.RawMessage `json:"features"`
	Output    json.RawMessage `json:"output"`
	CreatedAt time.Time       `json:"created_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS sensor_snapshots (
    device TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS predictions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model VARCHAR(50) NOT NULL,
    features TEXT NOT NULL,
    output TEXT NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_predictions_model ON predictions(model, created_at);
`

// SQLite stores snapshots and predictions in a single database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: database}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the snapshot stored for device.
func (s *SQLite) Get(ctx context.Context, device string) (Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM sensor_snapshots WHERE device = ?`, device).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap := Snapshot{}
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", device, err)
	}
	return snap, nil
}

// Put replaces the snapshot for device.
func (s *SQLite) Put(ctx context.Context, device string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO sensor_snapshots (device, data, updated_at)
        VALUES (?, ?, ?)`, device, string(data), time.Now().UTC())
	return err
}

// Update merges fields into the stored snapshot, creating it if needed, and
// returns the merged result.
func (s *SQLite) Update(ctx context.Context, device string, fields map[string]any) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{}
	var data string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM sensor_snapshots WHERE device = ?`, device).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		tx.Rollback()
		return nil, err
	default:
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("decode snapshot %s: %w", device, err)
		}
	}

	for k, v := range fields {
		snap[k] = v
	}
	merged, err := json.Marshal(snap)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
        INSERT OR REPLACE INTO sensor_snapshots (device, data, updated_at)
        VALUES (?, ?, ?)`, device, string(merged), time.Now().UTC())
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return snap, tx.Commit()
}

// RecordPrediction appends rec to the audit log.
func (s *SQLite) RecordPrediction(ctx context.Context, rec predict.Record) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return err
	}
	output, err := json.Marshal(rec.Output)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO predictions (model, features, output, created_at)
        VALUES (?, ?, ?, ?)`, rec.Model, string(features), string(output), rec.At.UTC())
	return err
}

// RecentPredictions returns up to limit audit rows for model, newest first.
func (s *SQLite) RecentPredictions(ctx context.Context, model string, limit int) ([]PredictionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, model, features, output, created_at
        FROM predictions
        WHERE model = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, model, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]PredictionRow, 0)
	for rows.Next() {
		var (
			row              PredictionRow
			features, output string
		)
		if err := rows.Scan(&row.ID, &row.Model, &features, &output, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Features = json.RawMessage(features)
		row.Output = json.RawMessage(output)
		out = append(out, row)
	}
	return out, rows.Err()
}
