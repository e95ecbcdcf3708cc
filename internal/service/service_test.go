package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hudsons/salespipe/internal/calendar"
	"github.com/hudsons/salespipe/internal/domain"
	"github.com/hudsons/salespipe/internal/ingest"
	"github.com/hudsons/salespipe/internal/queue"
	"github.com/hudsons/salespipe/internal/repository"
	"github.com/hudsons/salespipe/internal/weather"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&domain.SalesRecord{}, &domain.JobRun{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func testDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func record(t *testing.T, date, item, variationID string, qty int) domain.SalesRecord {
	day := testDay(t, date)
	return domain.SalesRecord{
		SaleDay:     day,
		ItemName:    item,
		VariationID: variationID,
		Quantity:    qty,
		DayOfWeek:   domain.DayOfWeekMonday0(day),
	}
}

// memStore is an in-memory PayloadStore for pipeline tests.
type memStore struct {
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

// hourlySample is one day of stubbed provider data, expanded to two
// identical hourly samples.
type hourlySample struct {
	Temp   float64
	RH     float64
	Precip float64
	Code   int
}

// newWeatherStub serves the provider's hourly JSON shape for the dates in
// data; requested dates absent from data simply yield no samples.
func newWeatherStub(t *testing.T, data map[string]hourlySample) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, err := time.Parse(domain.DateLayout, r.URL.Query().Get("start_date"))
		if err != nil {
			http.Error(w, "bad start_date", http.StatusBadRequest)
			return
		}
		end, err := time.Parse(domain.DateLayout, r.URL.Query().Get("end_date"))
		if err != nil {
			http.Error(w, "bad end_date", http.StatusBadRequest)
			return
		}

		var payload struct {
			Hourly struct {
				Time               []string   `json:"time"`
				Temperature2M      []*float64 `json:"temperature_2m"`
				RelativeHumidity2M []*float64 `json:"relative_humidity_2m"`
				Precipitation      []*float64 `json:"precipitation"`
				WeatherCode        []*int     `json:"weathercode"`
			} `json:"hourly"`
		}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			sample, ok := data[d.Format(domain.DateLayout)]
			if !ok {
				continue
			}
			for hour := 0; hour < 2; hour++ {
				temp, rh, precip, code := sample.Temp, sample.RH, sample.Precip, sample.Code
				payload.Hourly.Time = append(payload.Hourly.Time, fmt.Sprintf("%sT%02d:00", d.Format(domain.DateLayout), hour))
				payload.Hourly.Temperature2M = append(payload.Hourly.Temperature2M, &temp)
				payload.Hourly.RelativeHumidity2M = append(payload.Hourly.RelativeHumidity2M, &rh)
				payload.Hourly.Precipitation = append(payload.Hourly.Precipitation, &precip)
				payload.Hourly.WeatherCode = append(payload.Hourly.WeatherCode, &code)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}))
}

func newTestEnricher(t *testing.T, sales *repository.SalesRepository, baseURL string) *Enricher {
	t.Helper()
	client := weather.NewClient(&weather.Config{
		BaseURL:   baseURL,
		Latitude:  -33.8908,
		Longitude: 151.2495,
		Timezone:  "Australia/Sydney",
		ChunkDays: 31,
		Timeout:   5 * time.Second,
	})
	holidays, err := calendar.NewHolidayCalendar("AU-NSW", nil)
	if err != nil {
		t.Fatalf("NewHolidayCalendar failed: %v", err)
	}
	events, err := calendar.NewEventCalendar([]string{"2025-03-11"})
	if err != nil {
		t.Fatalf("NewEventCalendar failed: %v", err)
	}
	return NewEnricher(sales, client, holidays, events, 2)
}

func TestUpsertEngineIdempotent(t *testing.T) {
	sales := repository.NewSalesRepository(newTestDB(t))
	engine := NewUpsertEngine(sales)
	ctx := context.Background()

	batch := []domain.SalesRecord{
		record(t, "2025-03-11", "Flat White", "V100", 5),
		record(t, "2025-03-10", "Long Black", "V200", 3),
	}

	summary, err := engine.Apply(ctx, batch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if summary.Inserted != 2 || summary.Updated != 0 {
		t.Errorf("First apply: inserted=%d updated=%d, want 2/0", summary.Inserted, summary.Updated)
	}
	if len(summary.Dates) != 2 || !summary.Dates[0].Before(summary.Dates[1]) {
		t.Errorf("Dates = %v, want 2 sorted days", summary.Dates)
	}

	// Same batch again: all rows now count as updates, content unchanged.
	summary, err = engine.Apply(ctx, batch)
	if err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}
	if summary.Inserted != 0 || summary.Updated != 2 {
		t.Errorf("Second apply: inserted=%d updated=%d, want 0/2", summary.Inserted, summary.Updated)
	}

	rows, err := sales.ListByDay(ctx, testDay(t, "2025-03-11"))
	if err != nil {
		t.Fatalf("ListByDay failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Quantity != 5 {
		t.Errorf("Row state after re-apply: %+v", rows)
	}
}

func TestUpsertEngineQuantityCorrection(t *testing.T) {
	sales := repository.NewSalesRepository(newTestDB(t))
	engine := NewUpsertEngine(sales)
	ctx := context.Background()

	if _, err := engine.Apply(ctx, []domain.SalesRecord{record(t, "2025-03-10", "Flat White", "V100", 5)}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// A corrected re-upload of the same identity updates quantity in place.
	summary, err := engine.Apply(ctx, []domain.SalesRecord{record(t, "2025-03-10", "Flat White", "V100", 8)})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if summary.Inserted != 0 || summary.Updated != 1 {
		t.Errorf("inserted=%d updated=%d, want 0/1", summary.Inserted, summary.Updated)
	}

	got, err := sales.GetByIdentity(ctx, testDay(t, "2025-03-10"), "Flat White", "V100")
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if got.Quantity != 8 {
		t.Errorf("Quantity = %d, want 8", got.Quantity)
	}
}

func TestUpsertEngineLastRowWins(t *testing.T) {
	sales := repository.NewSalesRepository(newTestDB(t))
	engine := NewUpsertEngine(sales)
	ctx := context.Background()

	batch := []domain.SalesRecord{
		record(t, "2025-03-10", "Flat White", "V100", 5),
		record(t, "2025-03-10", "Long Black", "V200", 3),
		record(t, "2025-03-10", "Flat White", "V100", 9),
	}

	summary, err := engine.Apply(ctx, batch)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	// A within-batch duplicate is one logical row.
	if summary.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", summary.Inserted)
	}

	got, err := sales.GetByIdentity(ctx, testDay(t, "2025-03-10"), "Flat White", "V100")
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if got.Quantity != 9 {
		t.Errorf("Quantity = %d, want 9 (last occurrence)", got.Quantity)
	}
}

func TestUpsertEngineContractViolation(t *testing.T) {
	sales := repository.NewSalesRepository(newTestDB(t))
	engine := NewUpsertEngine(sales)

	bad := record(t, "2025-03-10", "", "V100", 5)
	_, err := engine.Apply(context.Background(), []domain.SalesRecord{bad})

	var violation *domain.ContractViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("Got %v, want ContractViolationError", err)
	}
}

func TestEnrichDatesWithGap(t *testing.T) {
	db := newTestDB(t)
	sales := repository.NewSalesRepository(db)
	ctx := context.Background()

	// 2025-03-10 has weather; 2025-03-11 does not (archive gap).
	server := newWeatherStub(t, map[string]hourlySample{
		"2025-03-10": {Temp: 21.0, RH: 70, Precip: 0.5, Code: 61},
	})
	defer server.Close()

	batch := []domain.SalesRecord{
		record(t, "2025-03-10", "Flat White", "V100", 5),
		record(t, "2025-03-11", "Flat White", "V100", 3),
	}
	if err := sales.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	enricher := newTestEnricher(t, sales, server.URL)
	report, err := enricher.EnrichDates(ctx, []time.Time{testDay(t, "2025-03-10"), testDay(t, "2025-03-11")})
	if err != nil {
		t.Fatalf("EnrichDates failed: %v", err)
	}

	if len(report.Enriched) != 1 || report.Enriched[0].Format(domain.DateLayout) != "2025-03-10" {
		t.Errorf("Enriched = %v, want [2025-03-10]", report.Enriched)
	}
	if len(report.Gaps) != 1 || report.Gaps[0].Format(domain.DateLayout) != "2025-03-11" {
		t.Errorf("Gaps = %v, want [2025-03-11]", report.Gaps)
	}
	if len(report.Failed) != 0 {
		t.Errorf("Failed = %v, want none", report.Failed)
	}
	if report.TotalFailure() {
		t.Error("Gap must not count as total failure")
	}

	withWeather, err := sales.GetByIdentity(ctx, testDay(t, "2025-03-10"), "Flat White", "V100")
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if withWeather.WeatherCode == nil || *withWeather.WeatherCode != 61 {
		t.Errorf("WeatherCode = %v, want 61", withWeather.WeatherCode)
	}
	if withWeather.Temperature == nil || *withWeather.Temperature != 21.0 {
		t.Errorf("Temperature = %v, want 21.0", withWeather.Temperature)
	}
	if withWeather.Precipitation == nil || *withWeather.Precipitation != 1.0 {
		// Two hourly samples of 0.5 each sum to 1.0.
		t.Errorf("Precipitation = %v, want 1.0", withWeather.Precipitation)
	}
	if withWeather.IsHoliday == nil || *withWeather.IsHoliday {
		t.Errorf("IsHoliday = %v, want false", withWeather.IsHoliday)
	}

	// The gap day still gets calendar flags; weather stays null.
	gapDay, err := sales.GetByIdentity(ctx, testDay(t, "2025-03-11"), "Flat White", "V100")
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if gapDay.WeatherCode != nil {
		t.Errorf("Gap day has weather code %v", *gapDay.WeatherCode)
	}
	if gapDay.IsLocalEvent == nil || !*gapDay.IsLocalEvent {
		t.Errorf("IsLocalEvent = %v, want true (configured event date)", gapDay.IsLocalEvent)
	}
}

func TestEnrichDatesProviderDown(t *testing.T) {
	db := newTestDB(t)
	sales := repository.NewSalesRepository(db)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"reason":"archive unavailable"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := sales.UpsertBatch(ctx, []domain.SalesRecord{record(t, "2025-03-10", "Flat White", "V100", 5)}); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	enricher := newTestEnricher(t, sales, server.URL)
	report, err := enricher.EnrichDates(ctx, []time.Time{testDay(t, "2025-03-10")})
	if err != nil {
		t.Fatalf("EnrichDates failed: %v", err)
	}

	if len(report.Failed) != 1 {
		t.Fatalf("Failed = %v, want one date", report.Failed)
	}
	if !report.TotalFailure() {
		t.Error("Every date failed; TotalFailure must be true")
	}

	// Calendar flags are written even when the weather fetch fails.
	got, err := sales.GetByIdentity(ctx, testDay(t, "2025-03-10"), "Flat White", "V100")
	if err != nil {
		t.Fatalf("GetByIdentity failed: %v", err)
	}
	if got.IsHoliday == nil {
		t.Error("Calendar flags not written for failed weather day")
	}
	if got.WeatherCode != nil {
		t.Errorf("Weather written despite provider failure: %v", *got.WeatherCode)
	}
}

func TestEnrichDatesEmpty(t *testing.T) {
	sales := repository.NewSalesRepository(newTestDB(t))
	enricher := newTestEnricher(t, sales, "http://127.0.0.1:0")

	report, err := enricher.EnrichDates(context.Background(), nil)
	if err != nil {
		t.Fatalf("EnrichDates failed: %v", err)
	}
	if len(report.Enriched)+len(report.Gaps)+len(report.Failed) != 0 {
		t.Errorf("Unexpected outcomes for empty input: %+v", report)
	}
}

func newTestPipeline(t *testing.T, db *gorm.DB, payloads *memStore, weatherURL string) (*PipelineService, *repository.JobRepository) {
	t.Helper()
	sales := repository.NewSalesRepository(db)
	jobs := repository.NewJobRepository(db)
	engine := NewUpsertEngine(sales)
	enricher := newTestEnricher(t, sales, weatherURL)
	return NewPipelineService(jobs, payloads, ingest.NewNormalizer(), engine, enricher), jobs
}

func TestPipelineRunSuccess(t *testing.T) {
	db := newTestDB(t)
	payloads := newMemStore()
	ctx := context.Background()

	server := newWeatherStub(t, map[string]hourlySample{
		"2025-03-10": {Temp: 19.0, RH: 65, Precip: 0, Code: 2},
	})
	defer server.Close()

	pipeline, jobs := newTestPipeline(t, db, payloads, server.URL)

	job, err := jobs.Create(ctx, "admin@hudsons")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	csvData := "sale_day,item_name,quantity\n" +
		"2025-03-10,Flat White,5\n" +
		"bad-date,Mocha,2\n" +
		"2025-03-10,Long Black,3\n"
	key := "jobs/" + job.JobID + ".csv"
	payloads.objects[key] = []byte(csvData)

	if err := pipeline.Run(ctx, queue.Task{JobID: job.JobID, ObjectKey: key}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, err := jobs.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.JobStatusSuccess {
		t.Fatalf("Status = %s, want SUCCESS (log: %s)", got.Status, got.Log)
	}
	if !got.ReadyForPrediction {
		t.Error("ReadyForPrediction not set on success")
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Error("Run timestamps not stamped")
	}

	for _, want := range []string{
		"Parsing CSV ...",
		"Rows parsed: 2 valid, 1 rejected (of 3)",
		"MALFORMED_INPUT row 2: INVALID_DATE (bad-date)",
		"Upserted rows: 2 (inserted 2, updated 0)",
		"Upload Success!",
	} {
		if !strings.Contains(got.Log, want) {
			t.Errorf("Log missing %q:\n%s", want, got.Log)
		}
	}

	sales := repository.NewSalesRepository(db)
	rows, err := sales.ListByDay(ctx, testDay(t, "2025-03-10"))
	if err != nil {
		t.Fatalf("ListByDay failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Got %d rows, want 2", len(rows))
	}
	for _, row := range rows {
		if row.WeatherCode == nil || *row.WeatherCode != 2 {
			t.Errorf("Row %s not enriched: %v", row.ItemName, row.WeatherCode)
		}
	}
}

func TestPipelineRunMissingPayload(t *testing.T) {
	db := newTestDB(t)
	payloads := newMemStore()
	ctx := context.Background()

	pipeline, jobs := newTestPipeline(t, db, payloads, "http://127.0.0.1:0")

	job, err := jobs.Create(ctx, "admin@hudsons")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	runErr := pipeline.Run(ctx, queue.Task{JobID: job.JobID, ObjectKey: "jobs/missing.csv"})
	if runErr == nil {
		t.Fatal("Run succeeded with a missing payload")
	}

	got, err := jobs.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("Status = %s, want FAILED", got.Status)
	}
	if !strings.Contains(got.Log, "ERROR:") {
		t.Errorf("Log missing error line: %q", got.Log)
	}
	if got.ReadyForPrediction {
		t.Error("Failed job marked ready")
	}
}

func TestPipelineRunUnreadableInput(t *testing.T) {
	db := newTestDB(t)
	payloads := newMemStore()
	ctx := context.Background()

	pipeline, jobs := newTestPipeline(t, db, payloads, "http://127.0.0.1:0")

	job, err := jobs.Create(ctx, "admin@hudsons")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	key := "jobs/" + job.JobID + ".csv"
	payloads.objects[key] = []byte("   \n")

	if err := pipeline.Run(ctx, queue.Task{JobID: job.JobID, ObjectKey: key}); err == nil {
		t.Fatal("Run succeeded with unreadable input")
	}

	got, err := jobs.Get(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.JobStatusFailed {
		t.Errorf("Status = %s, want FAILED", got.Status)
	}
}

// captureQueue records enqueued tasks, optionally failing.
type captureQueue struct {
	tasks []queue.Task
	err   error
}

func (q *captureQueue) Enqueue(ctx context.Context, task queue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func TestIntakeSubmit(t *testing.T) {
	db := newTestDB(t)
	jobs := repository.NewJobRepository(db)
	payloads := newMemStore()
	q := &captureQueue{}
	intake := NewIntakeService(jobs, payloads, q)
	ctx := context.Background()

	job, err := intake.Submit(ctx, "admin@hudsons", []byte("sale_day,item_name,quantity\n"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.Status != domain.JobStatusQueued {
		t.Errorf("Status = %s, want QUEUED", job.Status)
	}

	key := "jobs/" + job.JobID + ".csv"
	if _, ok := payloads.objects[key]; !ok {
		t.Errorf("Payload not stored at %s", key)
	}
	if len(q.tasks) != 1 || q.tasks[0].JobID != job.JobID || q.tasks[0].ObjectKey != key {
		t.Errorf("Enqueued tasks = %+v", q.tasks)
	}

	status, err := intake.Status(ctx, job.JobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.StartedBy != "admin@hudsons" {
		t.Errorf("StartedBy = %q", status.StartedBy)
	}
}

func TestIntakeSubmitEnqueueFailure(t *testing.T) {
	db := newTestDB(t)
	jobs := repository.NewJobRepository(db)
	q := &captureQueue{err: errors.New("redis down")}
	intake := NewIntakeService(jobs, newMemStore(), q)
	ctx := context.Background()

	job, err := intake.Submit(ctx, "admin@hudsons", []byte("x\n"))
	if err == nil {
		t.Fatal("Submit succeeded with a dead queue")
	}
	if job != nil {
		t.Fatalf("Submit returned a job despite failure: %+v", job)
	}

	// The orphaned job run is failed, not left QUEUED forever.
	var runs []domain.JobRun
	if err := db.Find(&runs).Error; err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Got %d job runs, want 1", len(runs))
	}
	if runs[0].Status != domain.JobStatusFailed {
		t.Errorf("Orphaned job status = %s, want FAILED", runs[0].Status)
	}
}
