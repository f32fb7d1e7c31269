package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/history"
	"github.com/healthsense-prediction-server/internal/predict"
	"github.com/healthsense-prediction-server/internal/service"
)

var (
	apiModelOnce sync.Once
	apiModel     *predict.Model
	apiModelErr  error
)

func testServer(t *testing.T, mutate func(cfg *domain.Config)) *Server {
	t.Helper()

	apiModelOnce.Do(func() {
		apiModel, apiModelErr = predict.Train(predict.TrainConfig{
			Seed:     7,
			Examples: 600,
			Trees:    25,
			MaxDepth: 15,
		})
	})
	require.NoError(t, apiModelErr)

	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	cfg := &domain.Config{
		Environment: "test",
		Server:      domain.ServerConfig{RateLimitDisabled: true},
		Logging:     domain.LoggingConfig{Level: "warn"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	predictions := service.NewPredictionService(logger, apiModel, store, nil)
	triage := service.NewTriageService(logger, nil)

	return NewServer(cfg, logger, predictions, triage)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestCreatePrediction(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"patient_id": "patient-1",
		"symptoms":   []string{"fever", "cough"},
		"limit":      5,
		"severity":   "Mild",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.NotEmpty(t, body["id"])
	assert.NotEmpty(t, body["primary_diagnosis"])
	assert.Len(t, body["rankings"], 5)
	assert.Equal(t, float64(2), body["symptom_count"])

	confidence, ok := body["confidence"].(float64)
	require.True(t, ok)
	assert.Greater(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestCreatePrediction_MissingSymptoms(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"patient_id": "patient-1",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeInvalidInput, errObj["code"])
}

func TestCreatePrediction_EmptySymptomsAllowed(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"symptoms": []string{},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(0), body["symptom_count"])
	assert.NotEmpty(t, body["rankings"])
}

func TestGetPrediction_NotFound(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/predictions/no-such-id", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestPredictionLifecycle(t *testing.T) {
	srv := testServer(t, nil)

	created := doJSON(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"patient_id": "patient-9",
		"symptoms":   []string{"headache", "nausea"},
	})
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodeBody(t, created)["id"].(string)

	got := doJSON(t, srv, http.MethodGet, "/api/v1/predictions/"+id, nil)
	require.Equal(t, http.StatusOK, got.Code)

	list := doJSON(t, srv, http.MethodGet, "/api/v1/predictions?patient_id=patient-9", nil)
	require.Equal(t, http.StatusOK, list.Code)
	listBody := decodeBody(t, list)
	assert.Equal(t, float64(1), listBody["count"])
	assert.Equal(t, float64(1), listBody["total"])

	deleted := doJSON(t, srv, http.MethodDelete, "/api/v1/predictions/"+id, nil)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	gone := doJSON(t, srv, http.MethodGet, "/api/v1/predictions/"+id, nil)
	require.Equal(t, http.StatusNotFound, gone.Code)
}

func TestListPredictions_TotalSpansPages(t *testing.T) {
	srv := testServer(t, nil)

	for i := 0; i < 3; i++ {
		created := doJSON(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
			"symptoms": []string{"fever", "cough"},
		})
		require.Equal(t, http.StatusCreated, created.Code)
	}

	list := doJSON(t, srv, http.MethodGet, "/api/v1/predictions?limit=2", nil)
	require.Equal(t, http.StatusOK, list.Code)

	body := decodeBody(t, list)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(3), body["total"])
}

func TestVocabularyEndpoints(t *testing.T) {
	srv := testServer(t, nil)

	symptoms := doJSON(t, srv, http.MethodGet, "/api/v1/symptoms", nil)
	require.Equal(t, http.StatusOK, symptoms.Code)
	assert.Equal(t, float64(36), decodeBody(t, symptoms)["count"])

	diseases := doJSON(t, srv, http.MethodGet, "/api/v1/diseases", nil)
	require.Equal(t, http.StatusOK, diseases.Code)
	assert.Equal(t, float64(15), decodeBody(t, diseases)["count"])
}

func TestModelEndpoint(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/model", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(15), body["diseases"])
	assert.Equal(t, float64(36), body["symptoms"])
	assert.Equal(t, float64(25), body["trees"])

	importances, ok := body["feature_importances"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, importances, 36)
}

func TestStatsEndpoint(t *testing.T) {
	srv := testServer(t, nil)

	created := doJSON(t, srv, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"symptoms": []string{"fever", "cough"},
	})
	require.Equal(t, http.StatusCreated, created.Code)

	w := doJSON(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])
}

func TestTriageEndpoint_Fallback(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/triage", map[string]interface{}{
		"symptoms": []string{"fever", "chest_pain"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "Medium", body["urgency"])
	assert.Equal(t, true, body["fallback"])
}

func TestTriageEndpoint_EmptySymptoms(t *testing.T) {
	srv := testServer(t, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/triage", map[string]interface{}{
		"symptoms": []string{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimiting(t *testing.T) {
	srv := testServer(t, func(cfg *domain.Config) {
		cfg.Server.RateLimitDisabled = false
		cfg.Server.RateLimitPerSec = 1
		cfg.Server.RateLimitBurst = 1
	})

	first := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	body := decodeBody(t, second)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeRateLimit, errObj["code"])
}
