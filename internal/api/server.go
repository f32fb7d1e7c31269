package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	cfg         *domain.Config
	logger      *logrus.Logger
	predictions *service.PredictionService
	triage      *service.TriageService
	router      *gin.Engine
	server      *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(
	cfg *domain.Config,
	logger *logrus.Logger,
	predictions *service.PredictionService,
	triage *service.TriageService,
) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(logger))
	if !cfg.Server.RateLimitDisabled {
		router.Use(rateLimitMiddleware(cfg.Server))
	}

	server := &Server{
		cfg:         cfg,
		logger:      logger,
		predictions: predictions,
		triage:      triage,
		router:      router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Router exposes the configured gin engine.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.WithField("address", addr).Info("HTTP server started")

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/predictions", s.handleCreatePrediction)
		v1.GET("/predictions", s.handleListPredictions)
		v1.GET("/predictions/:id", s.handleGetPrediction)
		v1.DELETE("/predictions/:id", s.handleDeletePrediction)
		v1.GET("/symptoms", s.handleListSymptoms)
		v1.GET("/diseases", s.handleListDiseases)
		v1.GET("/model", s.handleModelInfo)
		v1.GET("/stats", s.handleStats)
		v1.POST("/triage", s.handleTriage)
	}
}
