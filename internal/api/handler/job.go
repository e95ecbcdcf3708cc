package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hudsons/salespipe/internal/domain"
	"github.com/hudsons/salespipe/internal/service"
	"gorm.io/gorm"
)

// JobHandler handles job status polling endpoints.
type JobHandler struct {
	intake *service.IntakeService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - intake: intake service instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(intake *service.IntakeService) *JobHandler {
	return &JobHandler{intake: intake}
}

// jobStatusResponse is the polling payload for one job run.
type jobStatusResponse struct {
	JobID              string           `json:"job_id"`
	Status             domain.JobStatus `json:"status"`
	ReadyForPrediction bool             `json:"ready_for_prediction"`
	StartedAt          *string          `json:"started_at,omitempty"`
	FinishedAt         *string          `json:"finished_at,omitempty"`
	Log                string           `json:"log,omitempty"`
}

// GetJob handles GET /api/v1/jobs/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Job ID is required",
		})
		return
	}

	job, err := h.intake.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Unknown job",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, jobStatusResponse{
		JobID:              job.JobID,
		Status:             job.Status,
		ReadyForPrediction: job.ReadyForPrediction,
		StartedAt:          formatTime(job.StartedAt),
		FinishedAt:         formatTime(job.FinishedAt),
		Log:                job.Log,
	})
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
