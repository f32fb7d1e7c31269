// Package main provides the entry point for the HealthSense prediction server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/healthsense-prediction-server/internal/api"
	"github.com/healthsense-prediction-server/internal/config"
	"github.com/healthsense-prediction-server/internal/database"
	"github.com/healthsense-prediction-server/internal/domain"
	"github.com/healthsense-prediction-server/internal/history"
	"github.com/healthsense-prediction-server/internal/predict"
	"github.com/healthsense-prediction-server/internal/service"
	"github.com/healthsense-prediction-server/pkg/external"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := newLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the prediction history store
	store, closeStore, err := openStore(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open history store")
	}
	defer closeStore()

	// Train the ensemble at startup
	logger.WithFields(logrus.Fields{
		"seed":     cfg.Model.Seed,
		"examples": cfg.Model.Examples,
		"trees":    cfg.Model.Trees,
	}).Info("Training prediction model")

	startTime := time.Now()
	model, err := predict.Train(predict.TrainConfig{
		Seed:            cfg.Model.Seed,
		Examples:        cfg.Model.Examples,
		Trees:           cfg.Model.Trees,
		MaxDepth:        cfg.Model.MaxDepth,
		MinSamplesSplit: cfg.Model.MinSamplesSplit,
		MinSamplesLeaf:  cfg.Model.MinSamplesLeaf,
	})
	if err != nil {
		logger.WithError(err).Fatal("Model training failed")
	}
	logger.WithFields(logrus.Fields{
		"diseases":      model.NumClasses(),
		"symptoms":      model.NumFeatures(),
		"training_time": time.Since(startTime),
	}).Info("Prediction model ready")

	// Optional prediction result cache
	var cache *external.ResultCache
	if cfg.Cache.Enabled {
		cache, err = external.NewResultCache(cfg.Cache)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create result cache")
		}
		defer cache.Close()
	}

	// Optional triage assistant
	var triageClient *external.TriageClient
	if cfg.Triage.Enabled {
		triageClient = external.NewTriageClient(cfg.Triage)
	}

	predictions := service.NewPredictionService(logger, model, store, cache)
	triage := service.NewTriageService(logger, triageClient)

	server := api.NewServer(cfg, logger, predictions, triage)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

// openStore opens the configured history store, running migrations for the
// postgres driver.
func openStore(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) (history.Store, func(), error) {
	cfg := configManager.GetConfig()

	switch cfg.Storage.Driver {
	case "sqlite":
		store, err := history.NewSQLiteStore(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("path", cfg.Storage.SQLite.Path).Info("Using SQLite history store")
		return store, func() { store.Close() }, nil

	case "postgres":
		pg := cfg.Storage.Postgres

		runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), pg.MigrationsPath, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := runner.Up(); err != nil {
			runner.Close()
			return nil, nil, err
		}
		runner.Close()

		db, err := database.Connect(ctx, pg, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logrus.Fields{
			"host":     pg.Host,
			"database": pg.Database,
		}).Info("Using PostgreSQL history store")
		return history.NewPostgresStore(db.Pool, logger), db.Close, nil

	default:
		return nil, nil, domain.NewAppError(domain.ErrCodeConfiguration,
			"unknown storage driver", cfg.Storage.Driver, "")
	}
}

// newLogger builds the application logger from configuration.
func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	return logger
}
