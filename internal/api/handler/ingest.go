package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hudsons/salespipe/internal/service"
)

// maxUploadBytes caps the accepted CSV size (32 MB).
const maxUploadBytes = 32 << 20

// IngestHandler handles sales CSV upload submissions.
type IngestHandler struct {
	intake *service.IntakeService
}

// NewIngestHandler creates a new ingest handler.
// Parameters:
//   - intake: intake service instance.
// Returns:
//   - *IngestHandler: initialized handler.
func NewIngestHandler(intake *service.IntakeService) *IngestHandler {
	return &IngestHandler{intake: intake}
}

// Ingest handles POST /api/v1/ingest. Accepts a multipart CSV upload,
// creates a job and enqueues the pipeline; responds with the job ID for
// polling.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestHandler) Ingest(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "A CSV file upload is required",
		})
		return
	}

	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Please upload a CSV file",
		})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "File too large",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to open upload: " + err.Error(),
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Failed to read upload: " + err.Error(),
		})
		return
	}

	startedBy := c.DefaultPostForm("started_by", "admin@hudsons")

	job, err := h.intake.Submit(c.Request.Context(), startedBy, data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.JobID,
	})
}
