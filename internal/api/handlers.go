package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/service"
)

// predictionRequest is the wire shape of POST /predictions
type predictionRequest struct {
	PatientID string   `json:"patient_id"`
	Symptoms  []string `json:"symptoms" binding:"required"`
	Limit     int      `json:"limit"`
	Severity  string   `json:"severity"`
	Duration  string   `json:"duration"`
	Notes     string   `json:"notes"`
}

// triageRequest is the wire shape of POST /triage
type triageRequest struct {
	Symptoms []string `json:"symptoms" binding:"required,min=1"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"model": gin.H{
			"diseases": len(s.predictions.Diseases()),
			"symptoms": len(s.predictions.Symptoms()),
		},
	})
}

// handleCreatePrediction runs a prediction and persists the record
func (s *Server) handleCreatePrediction(c *gin.Context) {
	var req predictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "symptoms field is required", err)
		return
	}

	outcome, err := s.predictions.Predict(c.Request.Context(), service.PredictParams{
		PatientID: req.PatientID,
		Symptoms:  req.Symptoms,
		Limit:     req.Limit,
		Severity:  req.Severity,
		Duration:  req.Duration,
		Notes:     req.Notes,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":                outcome.Record.ID,
		"patient_id":        outcome.Record.PatientID,
		"primary_diagnosis": outcome.Record.PrimaryDiagnosis,
		"confidence":        outcome.Record.Confidence,
		"rankings":          outcome.Result.Rankings,
		"importance":        outcome.Result.Importance,
		"symptom_count":     outcome.Result.SymptomCount,
		"cached":            outcome.Cached,
		"created_at":        outcome.Record.CreatedAt,
	})
}

// handleGetPrediction returns a single prediction record
func (s *Server) handleGetPrediction(c *gin.Context) {
	record, err := s.predictions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleListPredictions returns prediction records with optional patient filter
func (s *Server) handleListPredictions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := s.predictions.List(c.Request.Context(), c.Query("patient_id"), limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}

	total, err := s.predictions.Count(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"predictions": records,
		"count":       len(records),
		"total":       total,
	})
}

// handleDeletePrediction removes a prediction record
func (s *Server) handleDeletePrediction(c *gin.Context) {
	if err := s.predictions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleListSymptoms returns the model's symptom vocabulary
func (s *Server) handleListSymptoms(c *gin.Context) {
	symptoms := s.predictions.Symptoms()
	c.JSON(http.StatusOK, gin.H{
		"symptoms": symptoms,
		"count":    len(symptoms),
	})
}

// handleListDiseases returns the model's disease labels
func (s *Server) handleListDiseases(c *gin.Context) {
	diseases := s.predictions.Diseases()
	c.JSON(http.StatusOK, gin.H{
		"diseases": diseases,
		"count":    len(diseases),
	})
}

// handleModelInfo returns ensemble metadata and global feature importances
func (s *Server) handleModelInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.predictions.Model())
}

// handleStats returns prediction history analytics
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.predictions.Stats(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleTriage runs the external symptom triage assistant
func (s *Server) handleTriage(c *gin.Context) {
	var req triageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "symptoms field is required and must not be empty", err)
		return
	}

	assessment, err := s.triage.Analyze(c.Request.Context(), req.Symptoms)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// respondBadRequest writes a 400 with the standard error envelope
func (s *Server) respondBadRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": domain.NewAppError(domain.ErrCodeInvalidInput, message,
			err.Error(), c.GetString("request_id")),
	})
}

// respondError maps a service error to an HTTP status and error envelope
func (s *Server) respondError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)

	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrModelNotTrained):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrExternalAPI):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
		s.logger.WithError(err).WithField("request_id", c.GetString("request_id")).
			Error("Request failed")
	}

	c.JSON(status, gin.H{
		"error": domain.NewAppError(code, err.Error(), "", c.GetString("request_id")),
	})
}
