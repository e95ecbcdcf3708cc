package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hudsons/salespipe/internal/calendar"
	"github.com/hudsons/salespipe/internal/config"
	"github.com/hudsons/salespipe/internal/domain"
	"github.com/hudsons/salespipe/internal/logger"
	"github.com/hudsons/salespipe/internal/repository"
	"github.com/hudsons/salespipe/internal/service"
	"github.com/hudsons/salespipe/internal/weather"
)

// Backfill re-runs enrichment over sale days already in the store. Useful
// after changing the holiday or event calendars, or when historical weather
// was unavailable at ingest time.
func main() {
	var (
		fromFlag = flag.String("from", "", "only enrich days on or after this date (YYYY-MM-DD)")
		toFlag   = flag.String("to", "", "only enrich days on or before this date (YYYY-MM-DD)")
	)
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	from, to, err := parseWindow(*fromFlag, *toFlag)
	if err != nil {
		appLog.WithError(err).Fatal("Invalid date window")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	salesRepo := repository.NewSalesRepository(db)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	days, err := salesRepo.DistinctDays(ctx)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to list sale days")
	}
	days = filterWindow(days, from, to)
	if len(days) == 0 {
		appLog.Info("No sale days in window, nothing to do")
		return
	}

	appLog.WithField(logger.FieldCount, len(days)).Info("Backfilling enrichment")

	start := time.Now()
	report, err := enricher.EnrichDates(ctx, days)
	if err != nil {
		appLog.WithError(err).Fatal("Backfill aborted")
	}

	appLog.WithFields(logger.Fields{
		"enriched":             len(report.Enriched),
		"gaps":                 len(report.Gaps),
		"failed":               len(report.Failed),
		"rows_updated":         report.RowsUpdated,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Backfill complete")

	for _, day := range report.Failed {
		appLog.WithField(logger.FieldDate, day.Format(domain.DateLayout)).Warn("Weather fetch failed for day")
	}
}

func parseWindow(fromStr, toStr string) (from, to *time.Time, err error) {
	if fromStr != "" {
		t, perr := time.Parse(domain.DateLayout, fromStr)
		if perr != nil {
			return nil, nil, perr
		}
		from = &t
	}
	if toStr != "" {
		t, perr := time.Parse(domain.DateLayout, toStr)
		if perr != nil {
			return nil, nil, perr
		}
		to = &t
	}
	return from, to, nil
}

func filterWindow(days []time.Time, from, to *time.Time) []time.Time {
	var out []time.Time
	for _, d := range days {
		if from != nil && d.Before(*from) {
			continue
		}
		if to != nil && d.After(*to) {
			continue
		}
		out = append(out, d)
	}
	return out
}
