package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Submit(ctx context.Context, userID snowflake.ID, req SubmitRequest) (*SubmitResult, error)
	// Poll reconciles a job with its provider and returns the stored row.
	Poll(ctx context.Context, userID, jobID snowflake.ID) (*Job, error)
	// Refresh folds the provider's current report into job. Provider
	// failures are logged and the stored row is returned unchanged.
	Refresh(ctx context.Context, job *Job) (*Job, error)
	Get(ctx context.Context, userID, jobID snowflake.ID) (*Job, error)
	History(ctx context.Context, userID snowflake.ID, limit int) ([]Job, error)
	DownloadURL(ctx context.Context, userID, jobID snowflake.ID) (*Download, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	AttachProviderRef(ctx context.Context, db *gorm.DB, jobID snowflake.ID, ref string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, jobID snowflake.ID) (*Job, error)
	FindByIDForUser(ctx context.Context, db *gorm.DB, jobID, userID snowflake.ID) (*Job, error)
	ApplyStatus(ctx context.Context, db *gorm.DB, jobID snowflake.ID, update StatusUpdate, now time.Time) (bool, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Job, error)
	ListStale(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]Job, error)
}
