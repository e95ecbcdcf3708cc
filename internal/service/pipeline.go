package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hudsons/salespipe/internal/domain"
	"github.com/hudsons/salespipe/internal/ingest"
	"github.com/hudsons/salespipe/internal/logger"
	"github.com/hudsons/salespipe/internal/queue"
	"github.com/hudsons/salespipe/internal/repository"
	"github.com/hudsons/salespipe/internal/storage"
)

// PipelineService executes one ingest+enrich job end to end: payload fetch,
// normalize, upsert, enrich, with the job tracker updated at every phase
// transition. The job log is the single user-visible surface for all
// non-fatal issues.
type PipelineService struct {
	jobs       *repository.JobRepository
	payloads   storage.PayloadStore
	normalizer *ingest.Normalizer
	upsert     *UpsertEngine
	enricher   *Enricher
}

// NewPipelineService creates the pipeline executor.
func NewPipelineService(
	jobs *repository.JobRepository,
	payloads storage.PayloadStore,
	normalizer *ingest.Normalizer,
	upsert *UpsertEngine,
	enricher *Enricher,
) *PipelineService {
	return &PipelineService{
		jobs:       jobs,
		payloads:   payloads,
		normalizer: normalizer,
		upsert:     upsert,
		enricher:   enricher,
	}
}

// Run executes the pipeline for one task. Phase order is fixed: the upsert
// must complete and its touched-dates set be captured before enrichment
// starts. Row-level and per-date problems are absorbed into the job log;
// only contract violations, store failures and total enrichment failure
// transition the job to FAILED.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - task: job ID plus payload object key.
// Returns:
//   - error: the fatal error when the job failed; nil when the job reached
//     SUCCESS. Job state is already recorded either way.
func (s *PipelineService) Run(ctx context.Context, task queue.Task) error {
	ctx = logger.SetJobID(ctx, task.JobID)
	start := time.Now()

	if err := s.jobs.Transition(ctx, task.JobID, domain.JobStatusRunning, "Parsing CSV ..."); err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	data, err := s.loadPayload(ctx, task.ObjectKey)
	if err != nil {
		return s.fail(ctx, task.JobID, fmt.Errorf("payload fetch failed: %w", err))
	}

	result, err := s.normalizer.Normalize(data)
	if err != nil {
		return s.fail(ctx, task.JobID, fmt.Errorf("unreadable input: %w", err))
	}
	s.logRejections(ctx, task.JobID, result)

	summary, err := s.upsert.Apply(ctx, result.Records)
	if err != nil {
		return s.fail(ctx, task.JobID, err)
	}
	s.appendLog(ctx, task.JobID, fmt.Sprintf("Upserted rows: %d (inserted %d, updated %d)",
		summary.Inserted+summary.Updated, summary.Inserted, summary.Updated))

	report := &EnrichmentReport{}
	if len(summary.Dates) > 0 {
		s.appendLog(ctx, task.JobID, fmt.Sprintf("Backfilling weather for %d day(s) ...", len(summary.Dates)))

		report, err = s.enricher.EnrichDates(ctx, summary.Dates)
		if err != nil {
			return s.fail(ctx, task.JobID, fmt.Errorf("enrichment aborted: %w", err))
		}
		s.logEnrichment(ctx, task.JobID, report)

		if report.TotalFailure() {
			return s.fail(ctx, task.JobID, errors.New("enrichment failed for every date in the batch"))
		}
	}

	if err := s.jobs.SetReady(ctx, task.JobID, true); err != nil {
		return s.fail(ctx, task.JobID, &domain.StoreError{Op: "set ready", Err: err})
	}

	final := fmt.Sprintf("Upload Success! rows:%d rejected:%d | weather:%d gaps:%d failed:%d | took %s",
		summary.Inserted+summary.Updated, len(result.Rejections),
		len(report.Enriched), len(report.Gaps), len(report.Failed),
		time.Since(start).Round(time.Millisecond))
	if err := s.jobs.Transition(ctx, task.JobID, domain.JobStatusSuccess, final); err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	logger.CtxInfo(ctx, "Job completed: %s", final)
	return nil
}

// loadPayload downloads and reads the raw CSV for a task.
func (s *PipelineService) loadPayload(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.payloads.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// logRejections records every dropped row in the job log. Rejections are
// row-level and recoverable; the batch continues.
func (s *PipelineService) logRejections(ctx context.Context, jobID string, result *ingest.Result) {
	s.appendLog(ctx, jobID, fmt.Sprintf("Rows parsed: %d valid, %d rejected (of %d)",
		len(result.Records), len(result.Rejections), result.TotalRows))

	if len(result.Rejections) == 0 {
		return
	}

	var b strings.Builder
	for i, rej := range result.Rejections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("MALFORMED_INPUT ")
		b.WriteString(rej.String())
	}
	s.appendLog(ctx, jobID, b.String())
}

// logEnrichment records per-date outcomes. Gaps are warnings, not failures,
// and never block readiness.
func (s *PipelineService) logEnrichment(ctx context.Context, jobID string, report *EnrichmentReport) {
	for _, d := range report.Gaps {
		s.appendLog(ctx, jobID, fmt.Sprintf("ENRICHMENT_GAP: no weather data for %s", d.Format(domain.DateLayout)))
	}
	for _, d := range report.Failed {
		s.appendLog(ctx, jobID, fmt.Sprintf("WARNING: enrichment failed for %s", d.Format(domain.DateLayout)))
	}
	s.appendLog(ctx, jobID, fmt.Sprintf("Enrichment updated %d row(s) across %d day(s)",
		report.RowsUpdated, len(report.Enriched)+len(report.Gaps)))
}

// fail records a fatal error and moves the job to FAILED. The original
// error is returned so the worker can log it.
func (s *PipelineService) fail(ctx context.Context, jobID string, cause error) error {
	logger.FromContext(ctx).WithError(cause).Error("Job failed")
	if err := s.jobs.Transition(ctx, jobID, domain.JobStatusFailed, "ERROR: "+cause.Error()); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to record job failure")
	}
	return cause
}

// appendLog appends to the job log, logging (but not propagating) tracker
// write failures so a log hiccup never kills a healthy job.
func (s *PipelineService) appendLog(ctx context.Context, jobID, line string) {
	if err := s.jobs.AppendLog(ctx, jobID, line); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Failed to append job log")
	}
}
