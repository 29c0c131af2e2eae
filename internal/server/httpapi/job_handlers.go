package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oasis-water/oasis-backend/internal/common"
	"github.com/oasis-water/oasis-backend/internal/server/analysis"
	"github.com/oasis-water/oasis-backend/internal/server/artifacts"
	"github.com/oasis-water/oasis-backend/internal/server/models"
)

func jobView(j *models.Job) gin.H {
	view := gin.H{
		"job_id":           j.ID,
		"status":           j.Status,
		"progress_percent": j.ProgressPercent,
		"parameters":       j.Parameters,
		"created_at":       j.CreatedAt.Format(time.RFC3339),
	}
	if j.ErrorMessage != "" {
		view["error_message"] = j.ErrorMessage
	}
	if j.CompletedAt != nil {
		view["completed_at"] = j.CompletedAt.Format(time.RFC3339)
	}
	return view
}

// upload creates a job and stores the uploaded dataset as its input file.
func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, fmt.Errorf("%w: a file upload is required", common.ErrValidation))
		return
	}
	defer file.Close()

	if !analysis.SupportedExtension(header.Filename) {
		writeError(c, fmt.Errorf("%w: unsupported file format; use CSV, TXT or JSON", common.ErrValidation))
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(c, fmt.Errorf("%w: upload exceeds the size limit", common.ErrValidation))
		return
	}

	parameters := map[string]any{}
	if raw := c.PostForm("parameters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &parameters); err != nil {
			writeError(c, fmt.Errorf("%w: parameters must be a JSON object", common.ErrValidation))
			return
		}
	}

	userID := identity(c).UserID
	job, err := s.jobs.Create(c.Request.Context(), userID, parameters)
	if err != nil {
		writeError(c, err)
		return
	}

	if _, err := s.jobs.SaveUpload(c.Request.Context(), userID, job.ID, header.Filename, content); err != nil {
		writeError(c, err)
		return
	}

	job, err = s.jobs.Get(c.Request.Context(), userID, job.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, jobView(job))
}

// process starts background execution of a queued job.
func (s *Server) process(c *gin.Context) {
	job, err := s.starter.Begin(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, jobView(job))
}

func (s *Server) status(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobView(job))
}

func (s *Server) listJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, fmt.Errorf("%w: limit must be an integer", common.ErrValidation))
			return
		}
		limit = n
	}

	jobs, err := s.jobs.List(c.Request.Context(), identity(c).UserID, c.Query("status"), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]gin.H, len(jobs))
	for i, j := range jobs {
		views[i] = jobView(j)
	}
	c.JSON(http.StatusOK, gin.H{"jobs": views, "total": len(views)})
}

// results reports the outcome of a job. A job still in flight answers 202
// with its progress; a failed job answers with its stored error message.
func (s *Server) results(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	switch job.Status {
	case models.JobQueued, models.JobProcessing:
		c.JSON(http.StatusAccepted, jobView(job))
	case models.JobFailed:
		c.JSON(http.StatusInternalServerError, jobView(job))
	case models.JobCompleted:
		if _, err := os.Stat(job.ResultsCSV); err != nil {
			writeError(c, common.ErrArtifactMissing)
			return
		}
		view := jobView(job)
		view["results_csv"] = job.ResultsCSV
		if s.presigner != nil && s.presigner.Enabled() {
			key := artifacts.StorageKey(job.UserID, job.ID)
			url, err := s.presigner.PresignGet(c.Request.Context(), key)
			if err != nil {
				s.logger.Warn(c.Request.Context(), "presign failed", "key", key, "error", err)
			} else {
				view["download_url"] = url
			}
		}
		c.JSON(http.StatusOK, view)
	}
}

// export streams the contributions CSV of a completed job. When object
// storage is configured the client is redirected to a presigned URL instead;
// a failed presign falls back to the local file.
func (s *Server) export(c *gin.Context) {
	if format := c.DefaultQuery("format", "csv"); format != "csv" {
		writeError(c, fmt.Errorf("%w: unsupported export format %q; only csv is available", common.ErrValidation, format))
		return
	}

	job, err := s.jobs.Get(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	if job.Status != models.JobCompleted {
		writeError(c, fmt.Errorf("%w: job is %s, results are available once it completes", common.ErrInvalidTransition, job.Status))
		return
	}

	if s.presigner != nil && s.presigner.Enabled() {
		key := artifacts.StorageKey(job.UserID, job.ID)
		url, err := s.presigner.PresignGet(c.Request.Context(), key)
		if err == nil {
			c.Redirect(http.StatusFound, url)
			return
		}
		s.logger.Warn(c.Request.Context(), "presign failed", "key", key, "error", err)
	}

	if _, err := os.Stat(job.ResultsCSV); err != nil {
		writeError(c, common.ErrArtifactMissing)
		return
	}
	c.FileAttachment(job.ResultsCSV, "contributions.csv")
}
