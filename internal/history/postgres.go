package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/healthsense-prediction-server/internal/domain"
)

// PostgresStore implements the Store interface on a pgx connection pool.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStore creates a new postgres-backed prediction history store.
// The schema is managed by the migration runner, not by the store.
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		log: logger,
	}
}

// Save inserts a new prediction record.
func (s *PostgresStore) Save(ctx context.Context, record *Record) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	symptomsJSON, rankingsJSON, err := encodeJSONColumns(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO predictions (
			id, patient_id, symptoms, primary_diagnosis, confidence,
			rankings, symptom_count, severity, duration, notes, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err = s.db.Exec(ctx, query,
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
		s.log.WithFields(logrus.Fields{
			"prediction_id": record.ID,
			"patient_id":    record.PatientID,
			"error":         err,
		}).Error("Failed to save prediction")
		return fmt.Errorf("saving prediction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"prediction_id": record.ID,
		"patient_id":    record.PatientID,
		"diagnosis":     record.PrimaryDiagnosis,
	}).Info("Prediction saved")

	return nil
}

const pgSelectColumns = `id, patient_id, symptoms, primary_diagnosis, confidence,
	rankings, symptom_count, severity, duration, notes, created_at`

func scanPgRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	var symptomsJSON, rankingsJSON []byte

	err := row.Scan(
		&rec.ID, &rec.PatientID, &symptomsJSON, &rec.PrimaryDiagnosis,
		&rec.Confidence, &rankingsJSON, &rec.SymptomCount,
		&rec.Severity, &rec.Duration, &rec.Notes, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(symptomsJSON, &rec.Symptoms); err != nil {
		return nil, fmt.Errorf("decoding symptoms: %w", err)
	}
	if err := json.Unmarshal(rankingsJSON, &rec.Rankings); err != nil {
		return nil, fmt.Errorf("decoding rankings: %w", err)
	}
	return rec, nil
}

// GetByID retrieves a prediction record by its ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + pgSelectColumns + ` FROM predictions WHERE id = $1`

	rec, err := scanPgRecord(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
		}
		s.log.WithFields(logrus.Fields{
			"prediction_id": id,
			"error":         err,
		}).Error("Failed to get prediction by ID")
		return nil, fmt.Errorf("getting prediction by ID: %w", err)
	}

	return rec, nil
}

// List returns prediction records with pagination, newest first.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	query := `SELECT ` + pgSelectColumns + ` FROM predictions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	defer rows.Close()

	return s.collect(rows)
}

// ListByPatient returns a patient's prediction records with pagination.
func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, error) {
	query := `SELECT ` + pgSelectColumns + ` FROM predictions
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.Query(ctx, query, patientID, limit, offset)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to list predictions by patient")
		return nil, fmt.Errorf("listing predictions by patient: %w", err)
	}
	defer rows.Close()

	return s.collect(rows)
}

func (s *PostgresStore) collect(rows pgx.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prediction rows: %w", err)
	}
	return records, nil
}

// Count returns the total number of stored predictions.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM predictions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting predictions: %w", err)
	}
	return count, nil
}

// Delete removes a prediction record by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.Exec(ctx, "DELETE FROM predictions WHERE id = $1", id)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"prediction_id": id,
			"error":         err,
		}).Error("Failed to delete prediction")
		return fmt.Errorf("deleting prediction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
	}

	s.log.WithField("prediction_id", id).Info("Prediction deleted")
	return nil
}

// Stats aggregates the stored history: totals per diagnosis and the mean
// top-confidence across all predictions.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByDiagnosis: make(map[string]int64)}

	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*), COALESCE(AVG(confidence), 0) FROM predictions",
	).Scan(&stats.Total, &stats.AverageConfidence)
	if err != nil {
		return nil, fmt.Errorf("aggregating predictions: %w", err)
	}

	rows, err := s.db.Query(ctx,
		"SELECT primary_diagnosis, COUNT(*) FROM predictions GROUP BY primary_diagnosis")
	if err != nil {
		return nil, fmt.Errorf("grouping predictions by diagnosis: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var diagnosis string
		var count int64
		if err := rows.Scan(&diagnosis, &count); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		stats.ByDiagnosis[diagnosis] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}
	return stats, nil
}

// Close is a no-op; the pool is owned by the database package.
func (s *PostgresStore) Close() error {
	return nil
}
