package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/healthsense-prediction-server/internal/history"
	"github.com/healthsense-prediction-server/internal/predict"
	"github.com/healthsense-prediction-server/pkg/external"
)

// PredictionService runs the disease predictor and records every prediction in
// the history store. A result cache is optional; when present, repeated queries
// for the same symptom set skip the ensemble walk.
type PredictionService struct {
	logger    *logrus.Logger
	model     *predict.Model
	predictor *predict.Predictor
	store     history.Store
	cache     *external.ResultCache
}

// NewPredictionService creates a new prediction service. cache may be nil.
func NewPredictionService(
	logger *logrus.Logger,
	model *predict.Model,
	store history.Store,
	cache *external.ResultCache,
) *PredictionService {
	return &PredictionService{
		logger:    logger,
		model:     model,
		predictor: predict.NewPredictor(model),
		store:     store,
		cache:     cache,
	}
}

// PredictParams carries a prediction request through the service layer.
type PredictParams struct {
	PatientID string   `json:"patient_id"`
	Symptoms  []string `json:"symptoms"`
	Limit     int      `json:"limit"`
	Severity  string   `json:"severity"`
	Duration  string   `json:"duration"`
	Notes     string   `json:"notes"`
}

// PredictOutcome is the service-level result of a prediction request.
type PredictOutcome struct {
	Record *history.Record `json:"record"`
	Result *predict.Result `json:"result"`
	Cached bool            `json:"cached"`
}

// Predict encodes the symptoms, runs the ensemble (or serves a cached result),
// and persists a history record.
func (s *PredictionService) Predict(ctx context.Context, params PredictParams) (*PredictOutcome, error) {
	startTime := time.Now()

	result, cached, err := s.rankedResult(ctx, params.Symptoms, params.Limit)
	if err != nil {
		return nil, err
	}

	record := &history.Record{
		ID:           uuid.New().String(),
		PatientID:    params.PatientID,
		Symptoms:     params.Symptoms,
		Rankings:     result.Rankings,
		SymptomCount: result.SymptomCount,
		Severity:     params.Severity,
		Duration:     params.Duration,
		Notes:        params.Notes,
		CreatedAt:    time.Now().UTC(),
	}
	top := result.Primary()
	record.PrimaryDiagnosis = top.Disease
	record.Confidence = top.Confidence

	if err := s.store.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save prediction record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"prediction_id":   record.ID,
		"patient_id":      record.PatientID,
		"symptom_count":   record.SymptomCount,
		"diagnosis":       record.PrimaryDiagnosis,
		"confidence":      record.Confidence,
		"cached":          cached,
		"processing_time": time.Since(startTime),
	}).Info("Prediction completed")

	return &PredictOutcome{Record: record, Result: result, Cached: cached}, nil
}

func (s *PredictionService) rankedResult(ctx context.Context, symptoms []string, limit int) (*predict.Result, bool, error) {
	if s.cache != nil {
		if result, found, err := s.cache.Get(ctx, symptoms, limit); err == nil && found {
			return result, true, nil
		} else if err != nil {
			s.logger.WithError(err).Warn("Prediction cache lookup failed")
		}
	}

	result, err := s.predictor.Predict(symptoms, limit)
	if err != nil {
		return nil, false, fmt.Errorf("prediction failed: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, symptoms, limit, result, 0); err != nil {
			s.logger.WithError(err).Warn("Failed to cache prediction result")
		}
	}

	return result, false, nil
}

// Get returns a single prediction record by ID.
func (s *PredictionService) Get(ctx context.Context, id string) (*history.Record, error) {
	return s.store.GetByID(ctx, id)
}

// List returns prediction records, optionally filtered by patient ID.
func (s *PredictionService) List(ctx context.Context, patientID string, limit, offset int) ([]*history.Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if patientID != "" {
		return s.store.ListByPatient(ctx, patientID, limit, offset)
	}
	return s.store.List(ctx, limit, offset)
}

// Count returns the total number of stored prediction records.
func (s *PredictionService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// Delete removes a prediction record.
func (s *PredictionService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("prediction_id", id).Info("Prediction record deleted")
	return nil
}

// Stats returns history analytics.
func (s *PredictionService) Stats(ctx context.Context) (*history.Stats, error) {
	return s.store.Stats(ctx)
}

// Symptoms returns the model's symptom vocabulary in feature order.
func (s *PredictionService) Symptoms() []string {
	return s.model.Symptoms()
}

// Diseases returns the model's disease labels in class-index order.
func (s *PredictionService) Diseases() []string {
	return s.model.Diseases()
}

// ModelInfo describes the trained ensemble.
type ModelInfo struct {
	Diseases    int                `json:"diseases"`
	Symptoms    int                `json:"symptoms"`
	Trees       int                `json:"trees"`
	MaxDepth    int                `json:"max_depth"`
	Examples    int                `json:"training_examples"`
	Seed        int64              `json:"seed"`
	TrainedAt   time.Time          `json:"trained_at"`
	Importances map[string]float64 `json:"feature_importances"`
}

// Model returns metadata and global feature importances for the ensemble.
func (s *PredictionService) Model() ModelInfo {
	cfg := s.model.Config()
	return ModelInfo{
		Diseases:    s.model.NumClasses(),
		Symptoms:    s.model.NumFeatures(),
		Trees:       cfg.Trees,
		MaxDepth:    cfg.MaxDepth,
		Examples:    cfg.Examples,
		Seed:        cfg.Seed,
		TrainedAt:   s.model.TrainedAt(),
		Importances: s.model.Importances(),
	}
}
