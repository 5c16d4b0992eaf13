package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/generation/domain"
	"github.com/smallbiznis/pearlsonic/internal/generation/repository"
	"github.com/smallbiznis/pearlsonic/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*gorm.DB, *snowflake.Node, domain.Repository) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Job{}))
	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	return conn, node, repository.Provide()
}

func insertJob(t *testing.T, conn *gorm.DB, node *snowflake.Node, repo domain.Repository, status domain.JobStatus, updated time.Time) *domain.Job {
	t.Helper()
	job := &domain.Job{
		ID:             node.Generate(),
		UserID:         node.Generate(),
		Prompt:         "ambient",
		DurationMs:     60_000,
		OutputFormat:   "mp3_44100_128",
		Provider:       "suno",
		ProviderRef:    "ref-" + node.Generate().String(),
		Status:         status,
		CreditsCharged: 1,
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
	require.NoError(t, repo.Insert(context.Background(), conn, job))
	return job
}

func TestApplyStatusIgnoresTerminalJobs(t *testing.T) {
	ctx := context.Background()
	conn, node, repo := setup(t)

	for _, status := range []domain.JobStatus{domain.JobStatusCompleted, domain.JobStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			job := insertJob(t, conn, node, repo, status, base)

			updates := []domain.StatusUpdate{
				{Status: domain.JobStatusGenerating, Progress: 80},
				{Status: domain.JobStatusCompleted, Progress: 100, AudioURL: "https://cdn.example/late.mp3"},
				{Status: domain.JobStatusFailed, ErrorMessage: "late failure"},
			}
			for _, update := range updates {
				changed, err := repo.ApplyStatus(ctx, conn, job.ID, update, base.Add(time.Minute))
				require.NoError(t, err)
				assert.False(t, changed)
			}

			stored, err := repo.FindByID(ctx, conn, job.ID)
			require.NoError(t, err)
			assert.Equal(t, status, stored.Status)
			assert.Equal(t, 0, stored.Progress)
			assert.Empty(t, stored.AudioURL)
			assert.Empty(t, stored.ErrorMessage)
			assert.True(t, stored.UpdatedAt.Equal(base))
		})
	}
}

func TestApplyStatusProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	conn, node, repo := setup(t)
	job := insertJob(t, conn, node, repo, domain.JobStatusGenerating, base)

	_, err := repo.ApplyStatus(ctx, conn, job.ID, domain.StatusUpdate{Status: domain.JobStatusGenerating, Progress: 70}, base)
	require.NoError(t, err)
	_, err = repo.ApplyStatus(ctx, conn, job.ID, domain.StatusUpdate{Status: domain.JobStatusGenerating, Progress: 20}, base)
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, stored.Progress)

	changed, err := repo.ApplyStatus(ctx, conn, job.ID, domain.StatusUpdate{
		Status:   domain.JobStatusCompleted,
		AudioURL: " https://cdn.example/a.mp3 ",
		Title:    "Tide",
	}, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err = repo.FindByID(ctx, conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.Equal(t, "https://cdn.example/a.mp3", stored.AudioURL)
	require.NotNil(t, stored.CompletedAt)
}

func TestFindByIDForUserHidesOtherUsers(t *testing.T) {
	ctx := context.Background()
	conn, node, repo := setup(t)
	job := insertJob(t, conn, node, repo, domain.JobStatusGenerating, base)

	_, err := repo.FindByIDForUser(ctx, conn, job.ID, node.Generate())
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	found, err := repo.FindByIDForUser(ctx, conn, job.ID, job.UserID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, found.ID)
}

func TestListStaleOnlyReturnsOldGeneratingJobs(t *testing.T) {
	ctx := context.Background()
	conn, node, repo := setup(t)

	old := insertJob(t, conn, node, repo, domain.JobStatusGenerating, base.Add(-time.Hour))
	insertJob(t, conn, node, repo, domain.JobStatusGenerating, base)
	insertJob(t, conn, node, repo, domain.JobStatusCompleted, base.Add(-2*time.Hour))

	jobs, err := repo.ListStale(ctx, conn, base.Add(-10*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, old.ID, jobs[0].ID)
}

func TestAttachProviderRefSetsOnce(t *testing.T) {
	ctx := context.Background()
	conn, node, repo := setup(t)
	job := &domain.Job{
		ID:           node.Generate(),
		UserID:       node.Generate(),
		Prompt:       "ambient",
		DurationMs:   60_000,
		OutputFormat: "mp3_44100_128",
		Provider:     "fal",
		Status:       domain.JobStatusGenerating,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	require.NoError(t, repo.Insert(ctx, conn, job))

	attached, err := repo.AttachProviderRef(ctx, conn, job.ID, "  ")
	require.NoError(t, err)
	assert.False(t, attached)

	attached, err = repo.AttachProviderRef(ctx, conn, job.ID, " req-1 ")
	require.NoError(t, err)
	assert.True(t, attached)

	attached, err = repo.AttachProviderRef(ctx, conn, job.ID, "req-2")
	require.NoError(t, err)
	assert.False(t, attached)

	stored, err := repo.FindByID(ctx, conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "req-1", stored.ProviderRef)
}
