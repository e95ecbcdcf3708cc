package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hudsons/salespipe/internal/api"
	"github.com/hudsons/salespipe/internal/calendar"
	"github.com/hudsons/salespipe/internal/config"
	"github.com/hudsons/salespipe/internal/ingest"
	"github.com/hudsons/salespipe/internal/logger"
	"github.com/hudsons/salespipe/internal/queue"
	"github.com/hudsons/salespipe/internal/repository"
	"github.com/hudsons/salespipe/internal/service"
	"github.com/hudsons/salespipe/internal/storage"
	"github.com/hudsons/salespipe/internal/weather"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLog := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	salesRepo := repository.NewSalesRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// Initialize payload storage
	payloadStore, err := storage.NewS3Store(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize payload storage")
	}

	ctx := context.Background()
	if err := payloadStore.EnsureBucket(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure storage bucket")
	}

	// Initialize dispatch transport
	var taskQueue queue.Queue
	switch cfg.Queue.Mode {
	case "redis":
		redisQueue, err := queue.NewRedisQueue(queue.RedisConfig{
			Address:  cfg.Queue.Addr,
			Password: cfg.Queue.Password,
			Database: cfg.Queue.Database,
			Key:      cfg.Queue.Key,
			Timeout:  cfg.Queue.Timeout,
		})
		if err != nil {
			appLog.WithError(err).Fatal("Failed to connect to Redis queue")
		}
		defer redisQueue.Close()
		taskQueue = redisQueue

	case "inline":
		pipeline := buildPipeline(cfg, salesRepo, jobRepo, payloadStore, appLog)
		taskQueue = queue.NewInlineQueue(pipeline.Run)

	default:
		appLog.Fatalf("Unknown queue mode: %q (expected redis or inline)", cfg.Queue.Mode)
	}

	intakeService := service.NewIntakeService(jobRepo, payloadStore, taskQueue)

	// Setup router
	router := api.SetupRouter(intakeService, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLog.WithFields(logger.Fields{
			"port":       cfg.Server.Port,
			"mode":       cfg.Server.Mode,
			"queue_mode": cfg.Queue.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}

// buildPipeline wires the full ingestion pipeline for inline dispatch.
func buildPipeline(
	cfg *config.Config,
	salesRepo *repository.SalesRepository,
	jobRepo *repository.JobRepository,
	payloadStore storage.PayloadStore,
	appLog *logger.Logger,
) *service.PipelineService {
	weatherClient := weather.NewClient(&weather.Config{
		BaseURL:   cfg.Weather.BaseURL,
		Latitude:  cfg.Weather.Latitude,
		Longitude: cfg.Weather.Longitude,
		Timezone:  cfg.Weather.Timezone,
		ChunkDays: cfg.Weather.ChunkDays,
		Timeout:   cfg.Weather.Timeout,
	})

	holidays, err := calendar.NewHolidayCalendar(cfg.Enrichment.HolidayRegion, cfg.Enrichment.ExtraHolidays)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to build holiday calendar")
	}
	events, err := calendar.NewEventCalendar(cfg.Enrichment.LocalEvents)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to build event calendar")
	}

	enricher := service.NewEnricher(salesRepo, weatherClient, holidays, events, cfg.Enrichment.Workers)
	upsertEngine := service.NewUpsertEngine(salesRepo)

	return service.NewPipelineService(jobRepo, payloadStore, ingest.NewNormalizer(), upsertEngine, enricher)
}
