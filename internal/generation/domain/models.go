package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	musicdomain "github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
)

type JobStatus string

const (
	JobStatusGenerating JobStatus = "generating"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one generation request. Only generating rows may change; completed
// and failed are final.
type Job struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	UserID         snowflake.ID `json:"user_id" gorm:"not null;index:idx_generation_jobs_user_created,priority:1"`
	Prompt         string       `json:"prompt" gorm:"type:text;not null"`
	Genre          string       `json:"genre" gorm:"type:varchar(64);not null"`
	Mood           string       `json:"mood" gorm:"type:varchar(64);not null"`
	DurationMs     int64        `json:"duration_ms" gorm:"not null"`
	Instrumental   bool         `json:"instrumental" gorm:"not null"`
	OutputFormat   string       `json:"output_format" gorm:"type:varchar(32);not null"`
	Provider       string       `json:"provider" gorm:"type:varchar(32);not null"`
	ProviderRef    string       `json:"-" gorm:"type:varchar(191);not null;index"`
	Status         JobStatus    `json:"status" gorm:"type:varchar(16);not null;index:idx_generation_jobs_status_updated,priority:1"`
	Progress       int          `json:"progress" gorm:"not null"`
	AudioURL       string       `json:"audio_url,omitempty" gorm:"type:text;not null"`
	CoverURL       string       `json:"cover_url,omitempty" gorm:"type:text;not null"`
	Title          string       `json:"title,omitempty" gorm:"type:text;not null"`
	ErrorMessage   string       `json:"error_message,omitempty" gorm:"type:text;not null"`
	CreditsCharged int64        `json:"credits_charged" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;index:idx_generation_jobs_user_created,priority:2"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;index:idx_generation_jobs_status_updated,priority:2"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (Job) TableName() string { return "generation_jobs" }

// StatusUpdate is a canonical provider report ready to be folded into a job.
type StatusUpdate struct {
	Status       JobStatus
	Progress     int
	AudioURL     string
	CoverURL     string
	Title        string
	ErrorMessage string
}

type SubmitResult struct {
	Job              *Job  `json:"job"`
	EstimatedTimeSec int   `json:"estimated_time"`
	CreditsCharged   int64 `json:"credits_charged"`
	RemainingCredits int64 `json:"remaining_credits"`
}

type Download struct {
	URL      string
	FileName string
}

type SubmitRequest = musicdomain.SubmitRequest

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)
