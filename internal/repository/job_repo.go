package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hudsons/salespipe/internal/domain"
	"gorm.io/gorm"
)

// JobRepository persists pipeline job lifecycle state so that a polling
// caller can observe progress without blocking.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job run in QUEUED state with a generated job ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - startedBy: identity of the submitting caller.
// Returns:
//   - *domain.JobRun: created job run.
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, startedBy string) (*domain.JobRun, error) {
	job := &domain.JobRun{
		JobID:     uuid.New().String(),
		StartedBy: startedBy,
		Status:    domain.JobStatusQueued,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// Get retrieves a job run by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
// Returns:
//   - *domain.JobRun: job run if found.
//   - error: gorm.ErrRecordNotFound if unknown, other non-nil on failure.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*domain.JobRun, error) {
	var job domain.JobRun
	if err := r.db.WithContext(ctx).First(&job, "job_id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Transition moves a job to a new status, enforcing the monotonic state
// machine: QUEUED → RUNNING → {SUCCESS, FAILED}. started_at is stamped on
// entering RUNNING, finished_at exactly once on entering a terminal state.
// An optional log line is appended atomically with the status change.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//   - next: target status.
//   - logLine: optional line appended to the job log; empty appends nothing.
// Returns:
//   - error: *domain.ContractViolationError on an illegal transition,
//     other non-nil on store failure.
func (r *JobRepository) Transition(ctx context.Context, jobID string, next domain.JobStatus, logLine string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.JobRun
		if err := tx.First(&job, "job_id = ?", jobID).Error; err != nil {
			return err
		}

		if !job.Status.CanTransitionTo(next) {
			return domain.ContractViolationf("job %s: illegal status transition %s -> %s", jobID, job.Status, next)
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{"status": next}
		if next == domain.JobStatusRunning {
			updates["started_at"] = now
		}
		if next.Terminal() {
			updates["finished_at"] = now
		}
		if logLine != "" {
			updates["log"] = appendLogExpr(logLine)
		}

		return tx.Model(&domain.JobRun{}).
			Where("job_id = ?", jobID).
			Updates(updates).Error
	})
}

// AppendLog appends a line to the job log. The log column is append-only:
// prior text is never overwritten.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//   - line: text to append; a newline is added.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) AppendLog(ctx context.Context, jobID string, line string) error {
	return r.db.WithContext(ctx).
		Model(&domain.JobRun{}).
		Where("job_id = ?", jobID).
		Update("log", appendLogExpr(line)).Error
}

// SetReady marks whether the job's data is ready for downstream prediction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job identifier.
//   - ready: readiness flag.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) SetReady(ctx context.Context, jobID string, ready bool) error {
	return r.db.WithContext(ctx).
		Model(&domain.JobRun{}).
		Where("job_id = ?", jobID).
		Update("ready_for_prediction", ready).Error
}

// appendLogExpr builds the append expression `COALESCE(log,'') || line\n`.
func appendLogExpr(line string) interface{} {
	return gorm.Expr("COALESCE(log,'') || ?", line+"\n")
}
