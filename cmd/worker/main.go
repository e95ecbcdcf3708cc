package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

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

// dequeueBlock bounds each blocking pop so shutdown signals are noticed
// promptly even on an idle queue.
const dequeueBlock = 5 * time.Second

func main() {
	// Load configuration
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

	// Initialize weather client and calendars
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
	pipeline := service.NewPipelineService(jobRepo, payloadStore, ingest.NewNormalizer(), upsertEngine, enricher)

	// Connect to the task queue
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

	// Shutdown on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLog.WithFields(logger.Fields{
		"addr": cfg.Queue.Addr,
		"key":  cfg.Queue.Key,
	}).Info("Worker started, waiting for jobs")

	for {
		task, err := redisQueue.Dequeue(ctx, dequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			appLog.WithError(err).Error("Failed to dequeue task")
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			// Queue idle; check for shutdown and poll again.
			if ctx.Err() != nil {
				break
			}
			continue
		}

		taskCtx := appLog.WithContext(context.Background())
		if err := pipeline.Run(taskCtx, *task); err != nil {
			appLog.WithError(err).WithField(logger.FieldJobID, task.JobID).
				Error("Job failed")
		}
	}

	appLog.Info("Worker exited")
}
