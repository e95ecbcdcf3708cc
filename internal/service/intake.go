package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hudsons/salespipe/internal/domain"
	"github.com/hudsons/salespipe/internal/logger"
	"github.com/hudsons/salespipe/internal/queue"
	"github.com/hudsons/salespipe/internal/repository"
	"github.com/hudsons/salespipe/internal/storage"
)

// IntakeService accepts raw uploads: it creates the job, parks the payload
// in object storage, and hands a reference to the task queue. The caller
// polls the job afterwards; nothing here blocks on pipeline work.
type IntakeService struct {
	jobs     *repository.JobRepository
	payloads storage.PayloadStore
	queue    queue.Queue
}

// NewIntakeService creates the intake boundary.
func NewIntakeService(jobs *repository.JobRepository, payloads storage.PayloadStore, q queue.Queue) *IntakeService {
	return &IntakeService{jobs: jobs, payloads: payloads, queue: q}
}

// Submit registers a new pipeline job for the given payload.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - startedBy: identity of the submitting caller.
//   - data: raw CSV bytes.
// Returns:
//   - *domain.JobRun: the QUEUED job; poll its job_id for progress.
//   - error: non-nil if the job could not be durably submitted. A job that
//     was created but could not be enqueued is transitioned to FAILED.
func (s *IntakeService) Submit(ctx context.Context, startedBy string, data []byte) (*domain.JobRun, error) {
	job, err := s.jobs.Create(ctx, startedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	ctx = logger.SetJobID(ctx, job.JobID)

	key := storage.UploadKey(job.JobID)
	if err := s.payloads.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "text/csv"); err != nil {
		s.abort(ctx, job.JobID, fmt.Errorf("failed to store payload: %w", err))
		return nil, fmt.Errorf("failed to store payload: %w", err)
	}

	task := queue.Task{JobID: job.JobID, ObjectKey: key}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.abort(ctx, job.JobID, fmt.Errorf("failed to enqueue job: %w", err))
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.CtxInfo(ctx, "Job submitted: %d byte payload", len(data))
	return job, nil
}

// Status returns the job run for polling.
func (s *IntakeService) Status(ctx context.Context, jobID string) (*domain.JobRun, error) {
	return s.jobs.Get(ctx, jobID)
}

// abort best-effort fails a job that never made it onto the queue.
func (s *IntakeService) abort(ctx context.Context, jobID string, cause error) {
	if err := s.jobs.Transition(ctx, jobID, domain.JobStatusFailed, "ERROR: "+cause.Error()); err != nil {
		logger.FromContext(ctx).WithError(err).Error("Failed to record submission failure")
	}
}
