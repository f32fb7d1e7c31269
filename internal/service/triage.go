package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/healthsense-prediction-server/pkg/external"
)

// TriageService wraps the external triage assistant. When the assistant is not
// configured every request receives the conservative fallback assessment.
type TriageService struct {
	logger *logrus.Logger
	client *external.TriageClient
}

// NewTriageService creates a new triage service. client may be nil when triage
// is disabled.
func NewTriageService(logger *logrus.Logger, client *external.TriageClient) *TriageService {
	return &TriageService{
		logger: logger,
		client: client,
	}
}

// Enabled reports whether an upstream assistant is configured.
func (s *TriageService) Enabled() bool {
	return s.client != nil
}

// Analyze returns a triage assessment for the given symptoms.
func (s *TriageService) Analyze(ctx context.Context, symptoms []string) (*external.TriageAssessment, error) {
	if s.client == nil {
		s.logger.Debug("Triage assistant disabled, returning fallback assessment")
		return external.FallbackAssessment(), nil
	}

	startTime := time.Now()

	assessment, err := s.client.AnalyzeSymptoms(ctx, symptoms)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"symptom_count":   len(symptoms),
		"urgency":         assessment.Urgency,
		"fallback":        assessment.Fallback,
		"processing_time": time.Since(startTime),
	}).Info("Triage analysis completed")

	return assessment, nil
}
