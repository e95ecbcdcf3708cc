package domain

import "time"

// JobStatus represents the lifecycle state of an ingest+enrich run.
// Transitions are monotonic: QUEUED → RUNNING → {SUCCESS, FAILED}.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "QUEUED"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal
// transition. Terminal states never transition; a state never transitions
// to itself or backwards.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusQueued:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusSuccess || next == JobStatusFailed
	default:
		return false
	}
}

// JobRun represents one invocation of the ingest+enrich pipeline. Rows are
// retained indefinitely for audit and polling.
type JobRun struct {
	JobID              string     `gorm:"type:text;primaryKey" json:"job_id"`
	StartedBy          string     `gorm:"type:text" json:"started_by,omitempty"`
	Status             JobStatus  `gorm:"type:text;not null;default:QUEUED;index" json:"status"`
	Log                string     `gorm:"type:text" json:"log,omitempty"`
	ReadyForPrediction bool       `gorm:"not null;default:false" json:"ready_for_prediction"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for JobRun.
func (JobRun) TableName() string {
	return "job_runs"
}
