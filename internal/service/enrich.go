package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hudsons/salespipe/internal/calendar"
	"github.com/hudsons/salespipe/internal/domain"
	"github.com/hudsons/salespipe/internal/logger"
	"github.com/hudsons/salespipe/internal/repository"
	"github.com/hudsons/salespipe/internal/weather"
	"golang.org/x/sync/errgroup"
)

// EnrichmentReport aggregates per-date outcomes of one enrichment pass.
// Enriched dates got weather and calendar flags; Gaps got calendar flags but
// the provider had no weather data; Failed dates hit a fetch or store error.
// All slices are sorted ascending.
type EnrichmentReport struct {
	Enriched    []time.Time
	Gaps        []time.Time
	Failed      []time.Time
	RowsUpdated int64
}

// TotalFailure reports whether every requested date failed. Gaps are not
// failures: "provider has no data" is a valid outcome.
func (r *EnrichmentReport) TotalFailure() bool {
	return len(r.Failed) > 0 && len(r.Enriched) == 0 && len(r.Gaps) == 0
}

// Enricher backfills weather, holiday and local-event signals onto stored
// sales rows, one date at a time. A failure for one date never aborts the
// others; outcomes are collected into the report for the job log.
type Enricher struct {
	sales    *repository.SalesRepository
	weather  *weather.Client
	holidays *calendar.HolidayCalendar
	events   *calendar.EventCalendar
	workers  int
}

// NewEnricher creates an enrichment orchestrator.
// Parameters:
//   - sales: sales repository for per-date updates.
//   - weatherClient: daily-aggregate weather source.
//   - holidays: holiday calendar.
//   - events: local-event calendar.
//   - workers: bound on concurrent per-date updates; values < 1 mean serial.
// Returns:
//   - *Enricher: initialized orchestrator.
func NewEnricher(
	sales *repository.SalesRepository,
	weatherClient *weather.Client,
	holidays *calendar.HolidayCalendar,
	events *calendar.EventCalendar,
	workers int,
) *Enricher {
	if workers < 1 {
		workers = 1
	}
	return &Enricher{
		sales:    sales,
		weather:  weatherClient,
		holidays: holidays,
		events:   events,
		workers:  workers,
	}
}

// EnrichDates enriches every row whose sale day is in days. Weather is
// fetched once over min..max in chunks; calendar flags are computed locally
// and written even for dates the provider has no weather for. Re-running for
// a date overwrites enrichment columns only; quantity and descriptive fields
// are never touched.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - days: distinct sale days to enrich.
// Returns:
//   - *EnrichmentReport: per-date outcomes; never nil.
//   - error: non-nil only for context cancellation.
func (e *Enricher) EnrichDates(ctx context.Context, days []time.Time) (*EnrichmentReport, error) {
	report := &EnrichmentReport{}
	if len(days) == 0 {
		return report, nil
	}

	normalized := make([]time.Time, len(days))
	for i, d := range days {
		normalized[i] = domain.NormalizeDay(d)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i].Before(normalized[j]) })

	perDay, fetchFailed := e.fetchWeather(ctx, normalized)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, day := range normalized {
		day := day
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			outcome, rows := e.enrichDay(gctx, day, perDay, fetchFailed)

			mu.Lock()
			defer mu.Unlock()
			report.RowsUpdated += rows
			switch outcome {
			case dayEnriched:
				report.Enriched = append(report.Enriched, day)
			case dayGap:
				report.Gaps = append(report.Gaps, day)
			default:
				report.Failed = append(report.Failed, day)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	sortDates(report.Enriched)
	sortDates(report.Gaps)
	sortDates(report.Failed)
	return report, nil
}

type dayOutcome int

const (
	dayEnriched dayOutcome = iota
	dayGap
	dayFailed
)

// enrichDay applies calendar flags and, when available, weather aggregates
// to one date. Update scope is exactly the rows with that sale day.
func (e *Enricher) enrichDay(ctx context.Context, day time.Time, perDay map[string]weather.Daily, fetchFailed map[string]bool) (dayOutcome, int64) {
	key := day.Format(domain.DateLayout)
	log := logger.FromContext(ctx).WithField(logger.FieldDate, key)

	rows, err := e.sales.UpdateCalendarFlags(ctx, day,
		e.holidays.IsHoliday(day), e.events.IsLocalEvent(day))
	if err != nil {
		log.WithError(err).Error("Failed to set calendar flags")
		return dayFailed, 0
	}

	daily, ok := perDay[key]
	if !ok {
		if fetchFailed[key] {
			return dayFailed, rows
		}
		log.Debug("No weather data for date")
		return dayGap, rows
	}

	wrows, err := e.sales.UpdateWeatherForDay(ctx, day,
		daily.Code, daily.Temperature, daily.Humidity, daily.Precipitation)
	if err != nil {
		log.WithError(err).Error("Failed to write weather aggregates")
		return dayFailed, rows
	}

	return dayEnriched, rows + wrows
}

// fetchWeather fetches daily aggregates covering the sorted date set in
// chunks. A failed chunk marks its dates failed and the remaining chunks are
// still attempted.
func (e *Enricher) fetchWeather(ctx context.Context, sorted []time.Time) (map[string]weather.Daily, map[string]bool) {
	perDay := make(map[string]weather.Daily)
	failed := make(map[string]bool)

	chunks := e.weather.Chunks(sorted[0], sorted[len(sorted)-1])
	for _, chunk := range chunks {
		daily, err := e.weather.FetchChunk(ctx, chunk)
		if err != nil {
			logger.FromContext(ctx).
				WithFields(logger.Fields{
					"start": chunk.Start.Format(domain.DateLayout),
					"end":   chunk.End.Format(domain.DateLayout),
				}).
				WithError(err).
				Warn("Weather fetch failed for range")
			for d := chunk.Start; !d.After(chunk.End); d = d.AddDate(0, 0, 1) {
				failed[d.Format(domain.DateLayout)] = true
			}
			continue
		}
		for k, v := range daily {
			perDay[k] = v
		}
	}
	return perDay, failed
}

func sortDates(dates []time.Time) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}
