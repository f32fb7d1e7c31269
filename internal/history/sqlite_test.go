package history

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/predict"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func testRecord(patientID string) *Record {
	return &Record{
		ID:               uuid.New().String(),
		PatientID:        patientID,
		Symptoms:         []string{"fever", "cough"},
		PrimaryDiagnosis: "Influenza",
		Confidence:       0.72,
		Rankings: []predict.Ranking{
			{Disease: "Influenza", Confidence: 0.72},
			{Disease: "Common Cold", Confidence: 0.18},
			{Disease: "COVID-19", Confidence: 0.10},
		},
		SymptomCount: 2,
		Severity:     "Moderate",
		Duration:     "3 days",
		Notes:        "patient reports chills overnight",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "predictions.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	record := testRecord("patient-1")
	require.NoError(t, store.Save(ctx, record))
	assert.False(t, record.CreatedAt.IsZero(), "CreatedAt should be set")

	got, err := store.GetByID(ctx, record.ID)
	require.NoError(t, err)

	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.PatientID, got.PatientID)
	assert.Equal(t, record.Symptoms, got.Symptoms)
	assert.Equal(t, record.PrimaryDiagnosis, got.PrimaryDiagnosis)
	assert.Equal(t, record.Confidence, got.Confidence)
	assert.Equal(t, record.Rankings, got.Rankings)
	assert.Equal(t, record.SymptomCount, got.SymptomCount)
	assert.Equal(t, record.Severity, got.Severity)
	assert.Equal(t, record.Notes, got.Notes)
}

func TestSQLiteStore_GetByID_NotFound(t *testing.T) {
	store := createTestStore(t)

	_, err := store.GetByID(context.Background(), uuid.New().String())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSQLiteStore_ListByPatient(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, testRecord("patient-a")))
	}
	require.NoError(t, store.Save(ctx, testRecord("patient-b")))

	records, err := store.ListByPatient(ctx, "patient-a", 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, "patient-a", rec.PatientID)
	}

	// Pagination
	page, err := store.ListByPatient(ctx, "patient-a", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	record := testRecord("patient-1")
	require.NoError(t, store.Save(ctx, record))

	require.NoError(t, store.Delete(ctx, record.ID))

	_, err := store.GetByID(ctx, record.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// Deleting again reports not found
	err = store.Delete(ctx, record.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSQLiteStore_Stats(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	flu := testRecord("p1")
	require.NoError(t, store.Save(ctx, flu))

	cold := testRecord("p2")
	cold.PrimaryDiagnosis = "Common Cold"
	cold.Confidence = 0.5
	require.NoError(t, store.Save(ctx, cold))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.ByDiagnosis["Influenza"])
	assert.Equal(t, int64(1), stats.ByDiagnosis["Common Cold"])
	assert.InDelta(t, 0.61, stats.AverageConfidence, 1e-9)
}

func TestSQLiteStore_Stats_Empty(t *testing.T) {
	store := createTestStore(t)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.Total)
	assert.Zero(t, stats.AverageConfidence)
	assert.Empty(t, stats.ByDiagnosis)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	first := testRecord("p1")
	second := testRecord("p2")
	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))

	target := createTestStore(t)
	require.NoError(t, target.Save(ctx, first)) // pre-existing record should be skipped

	imported, skipped, err := target.ImportJSON(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	count, err := target.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
