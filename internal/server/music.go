package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	generationdomain "github.com/smallbiznis/pearlsonic/internal/generation/domain"
	musicdomain "github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
)

type generateRequest struct {
	Prompt       string `json:"prompt"`
	DurationMs   int64  `json:"duration_ms"`
	Instrumental bool   `json:"instrumental"`
	OutputFormat string `json:"output_format"`
	Genre        string `json:"genre"`
	Mood         string `json:"mood"`
}

type jobStatusResponse struct {
	ID           string                     `json:"id"`
	Status       generationdomain.JobStatus `json:"status"`
	Progress     int                        `json:"progress"`
	AudioURL     string                     `json:"audio_url,omitempty"`
	CoverURL     string                     `json:"cover_url,omitempty"`
	Title        string                     `json:"title,omitempty"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
}

func newJobStatusResponse(job *generationdomain.Job) jobStatusResponse {
	return jobStatusResponse{
		ID:           job.ID.String(),
		Status:       job.Status,
		Progress:     job.Progress,
		AudioURL:     job.AudioURL,
		CoverURL:     job.CoverURL,
		Title:        job.Title,
		ErrorMessage: job.ErrorMessage,
		CompletedAt:  job.CompletedAt,
	}
}

func (s *Server) Generate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.generationSvc.Submit(c.Request.Context(), userID, generationdomain.SubmitRequest{
		Prompt:       req.Prompt,
		DurationMs:   req.DurationMs,
		Instrumental: req.Instrumental,
		OutputFormat: musicdomain.OutputFormat(req.OutputFormat),
		Genre:        req.Genre,
		Mood:         req.Mood,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("job_id", result.Job.ID.String())
	c.JSON(http.StatusCreated, gin.H{
		"job_id":            result.Job.ID.String(),
		"status":            result.Job.Status,
		"estimated_time":    result.EstimatedTimeSec,
		"credits_charged":   result.CreditsCharged,
		"remaining_credits": result.RemainingCredits,
	})
}

func (s *Server) JobStatus(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	jobID, err := parseJobID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("job_id", jobID.String())

	job, err := s.generationSvc.Poll(c.Request.Context(), userID, jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newJobStatusResponse(job))
}

func (s *Server) Download(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	jobID, err := parseJobID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("job_id", jobID.String())

	download, err := s.generationSvc.DownloadURL(c.Request.Context(), userID, jobID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.FileName))
	c.Redirect(http.StatusFound, download.URL)
}

func parseJobID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, generationdomain.ErrInvalidJobID
	}
	return id, nil
}
