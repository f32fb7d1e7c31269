package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/pkg/external"
)

func TestTriageService_DisabledReturnsFallback(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	svc := NewTriageService(logger, nil)
	assert.False(t, svc.Enabled())

	assessment, err := svc.Analyze(context.Background(), []string{"fever"})
	require.NoError(t, err)
	assert.True(t, assessment.Fallback)
	assert.Equal(t, "Medium", assessment.Urgency)
}

func TestTriageService_AnalyzeDelegatesToClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, _ := json.Marshal(map[string]interface{}{
			"conditions":      []string{"Influenza"},
			"urgency":         "High",
			"recommendations": []string{"See a doctor within 24 hours"},
			"warning_signs":   []string{"Shortness of breath"},
		})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": string(content)}},
			},
		})
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	client := external.NewTriageClient(domain.TriageConfig{
		Enabled:   true,
		BaseURL:   server.URL,
		Model:     "gpt-5",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	})
	svc := NewTriageService(logger, client)
	assert.True(t, svc.Enabled())

	assessment, err := svc.Analyze(context.Background(), []string{"fever", "chest_pain"})
	require.NoError(t, err)
	assert.Equal(t, "High", assessment.Urgency)
	assert.Equal(t, []string{"Influenza"}, assessment.Conditions)
	assert.False(t, assessment.Fallback)
}
