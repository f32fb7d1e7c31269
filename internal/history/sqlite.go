package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/predict"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite prediction history store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	// Create schema
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL DEFAULT '',
		symptoms TEXT NOT NULL,
		primary_diagnosis TEXT NOT NULL,
		confidence REAL NOT NULL,
		rankings TEXT NOT NULL,
		symptom_count INTEGER NOT NULL DEFAULT 0,
		severity TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_predictions_patient_id ON predictions(patient_id);
	CREATE INDEX IF NOT EXISTS idx_predictions_diagnosis ON predictions(primary_diagnosis);
	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a Record, decoding the JSON columns.
func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var symptomsJSON, rankingsJSON string

	err := s.Scan(
		&rec.ID, &rec.PatientID, &symptomsJSON, &rec.PrimaryDiagnosis,
		&rec.Confidence, &rankingsJSON, &rec.SymptomCount,
		&rec.Severity, &rec.Duration, &rec.Notes, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(symptomsJSON), &rec.Symptoms); err != nil {
		return nil, fmt.Errorf("decoding symptoms: %w", err)
	}
	if err := json.Unmarshal([]byte(rankingsJSON), &rec.Rankings); err != nil {
		return nil, fmt.Errorf("decoding rankings: %w", err)
	}
	return rec, nil
}

func encodeJSONColumns(record *Record) (symptoms, rankings string, err error) {
	if record.Symptoms == nil {
		record.Symptoms = []string{}
	}
	if record.Rankings == nil {
		record.Rankings = []predict.Ranking{}
	}
	symptomsBytes, err := json.Marshal(record.Symptoms)
	if err != nil {
		return "", "", fmt.Errorf("encoding symptoms: %w", err)
	}
	rankingsBytes, err := json.Marshal(record.Rankings)
	if err != nil {
		return "", "", fmt.Errorf("encoding rankings: %w", err)
	}
	return string(symptomsBytes), string(rankingsBytes), nil
}

// Save stores a prediction record.
func (s *SQLiteStore) Save(ctx context.Context, record *Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	symptomsJSON, rankingsJSON, err := encodeJSONColumns(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO predictions (
			id, patient_id, symptoms, primary_diagnosis, confidence,
			rankings, symptom_count, severity, duration, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.PatientID,
		symptomsJSON,
		record.PrimaryDiagnosis,
		record.Confidence,
		rankingsJSON,
		record.SymptomCount,
		record.Severity,
		record.Duration,
		record.Notes,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	return nil
}

const selectColumns = `id, patient_id, symptoms, primary_diagnosis, confidence,
	rankings, symptom_count, severity, duration, notes, created_at`

// GetByID retrieves a prediction record by its ID.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM predictions WHERE id = ? LIMIT 1`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return rec, nil
}

// List returns prediction records with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM predictions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// ListByPatient returns a patient's prediction records with pagination.
func (s *SQLiteStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM predictions WHERE patient_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	return collectRows(rows)
}

func collectRows(rows *sql.Rows) ([]*Record, error) {
	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Count returns the total number of stored predictions.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM predictions").Scan(&count)
	return count, err
}

// Delete removes a prediction record by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM predictions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Stats aggregates the stored history: totals per diagnosis and the mean
// top-confidence across all predictions.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByDiagnosis: make(map[string]int64)}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM predictions",
	).Scan(&stats.Total, &stats.AverageConfidence)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT primary_diagnosis, COUNT(*) FROM predictions GROUP BY primary_diagnosis")
	if err != nil {
		return nil, fmt.Errorf("failed to group by diagnosis: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var diagnosis string
		var count int64
		if err := rows.Scan(&diagnosis, &count); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		stats.ByDiagnosis[diagnosis] = count
	}
	return stats, rows.Err()
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON exports all prediction records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list predictions: %w", err)
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports prediction records from a JSON reader. Records whose
// IDs already exist are skipped.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, rec := range export.Records {
		var existingID string
		err := s.db.QueryRowContext(ctx,
			"SELECT id FROM predictions WHERE id = ?", rec.ID).Scan(&existingID)
		if err == nil {
			skipped++
			continue
		}
		if err != sql.ErrNoRows {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}

		if err := s.Save(ctx, rec); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
