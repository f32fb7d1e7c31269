package history

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/healthsense-prediction-server/internal/database"
	"github.com/healthsense-prediction-server/internal/domain"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	if os.Getenv("HEALTHSENSE_INTEGRATION_TESTS") == "" {
		t.Skip("Skipping postgres integration test; set HEALTHSENSE_INTEGRATION_TESTS=1 to run")
	}

	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.Connect(ctx, domain.PostgresConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "testdb",
		Username:        "testuser",
		Password:        testPassword,
		MaxConns:        5,
		MinConns:        1,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
		SSLMode:         "disable",
	}, logger)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(db.Close)

	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id UUID PRIMARY KEY,
		patient_id TEXT NOT NULL DEFAULT '',
		symptoms JSONB NOT NULL,
		primary_diagnosis TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		rankings JSONB NOT NULL,
		symptom_count INTEGER NOT NULL DEFAULT 0,
		severity TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return db
}

func TestPostgresStore_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	store := NewPostgresStore(db.Pool, logger)
	ctx := context.Background()

	record := testRecord("patient-1")
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.PrimaryDiagnosis != record.PrimaryDiagnosis {
		t.Errorf("Expected diagnosis %s, got %s", record.PrimaryDiagnosis, got.PrimaryDiagnosis)
	}
	if len(got.Rankings) != len(record.Rankings) {
		t.Errorf("Expected %d rankings, got %d", len(record.Rankings), len(got.Rankings))
	}
	if got.Confidence != record.Confidence {
		t.Errorf("Expected confidence %f, got %f", record.Confidence, got.Confidence)
	}
}

func TestPostgresStore_ListCountDeleteStats(t *testing.T) {
	db := setupTestDB(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	store := NewPostgresStore(db.Pool, logger)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, testRecord("patient-a")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}
	other := testRecord("patient-b")
	other.PrimaryDiagnosis = "Common Cold"
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	records, err := store.ListByPatient(ctx, "patient-a", 10, 0)
	if err != nil {
		t.Fatalf("ListByPatient failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("Expected 3 records, got %d", len(records))
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected count 4, got %d", count)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.ByDiagnosis["Influenza"] != 3 {
		t.Errorf("Expected 3 Influenza predictions, got %d", stats.ByDiagnosis["Influenza"])
	}

	if err := store.Delete(ctx, other.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, other.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}
