package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/generation/domain"
	musicdomain "github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return db.WithContext(ctx).Create(job).Error
}

// AttachProviderRef records the vendor reference once. A job that already
// carries a ref keeps it and false is returned.
func (r *repo) AttachProviderRef(ctx context.Context, db *gorm.DB, jobID snowflake.ID, ref string) (bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false, nil
	}
	result := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND provider_ref = ''", jobID).
		Update("provider_ref", ref)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, jobID snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Where("id = ?", jobID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindByIDForUser hides other users' jobs behind ErrJobNotFound.
func (r *repo) FindByIDForUser(ctx context.Context, db *gorm.DB, jobID, userID snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Where("id = ? AND user_id = ?", jobID, userID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ApplyStatus only touches rows that are still generating. Progress never
// moves backwards.
func (r *repo) ApplyStatus(ctx context.Context, db *gorm.DB, jobID snowflake.ID, update domain.StatusUpdate, now time.Time) (bool, error) {
	progress := musicdomain.ClampProgress(update.Progress)
	updates := map[string]any{
		"updated_at": now,
	}

	switch update.Status {
	case domain.JobStatusGenerating:
		updates["progress"] = gorm.Expr("CASE WHEN progress > ? THEN progress ELSE ? END", progress, progress)
	case domain.JobStatusCompleted:
		updates["status"] = domain.JobStatusCompleted
		updates["progress"] = 100
		updates["audio_url"] = strings.TrimSpace(update.AudioURL)
		updates["cover_url"] = strings.TrimSpace(update.CoverURL)
		updates["title"] = strings.TrimSpace(update.Title)
		updates["completed_at"] = now
	case domain.JobStatusFailed:
		updates["status"] = domain.JobStatusFailed
		updates["progress"] = gorm.Expr("CASE WHEN progress > ? THEN progress ELSE ? END", progress, progress)
		updates["error_message"] = strings.TrimSpace(update.ErrorMessage)
		updates["completed_at"] = now
	default:
		return false, nil
	}

	result := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND status = ?", jobID, domain.JobStatusGenerating).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.JobStatusGenerating, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
