// Package history persists prediction results on behalf of the calling
// application layer. Two stores are provided: PostgresStore for shared
// deployments and SQLiteStore for single-node ones.
package history

import (
	"context"
	"time"

	"github.com/healthsense-prediction-server/internal/predict"
)

// Record is one stored prediction: what was asked, what the model answered,
// and the clinical context the caller attached.
type Record struct {
	ID               string            `json:"id"`
	PatientID        string            `json:"patient_id,omitempty"`
	Symptoms         []string          `json:"symptoms"`
	PrimaryDiagnosis string            `json:"primary_diagnosis"`
	Confidence       float64           `json:"confidence"`
	Rankings         []predict.Ranking `json:"rankings"`
	SymptomCount     int               `json:"symptom_count"`
	Severity         string            `json:"severity,omitempty"`
	Duration         string            `json:"duration,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Stats summarizes the stored history for the analytics endpoint.
type Stats struct {
	Total             int64            `json:"total"`
	ByDiagnosis       map[string]int64 `json:"by_diagnosis"`
	AverageConfidence float64          `json:"average_confidence"`
}

// Export is the JSON envelope used by export/import.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

// Store is the prediction history persistence interface.
type Store interface {
	Save(ctx context.Context, record *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Record, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
