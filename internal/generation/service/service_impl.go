package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	"github.com/smallbiznis/pearlsonic/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	obslogger "github.com/smallbiznis/pearlsonic/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
	"github.com/smallbiznis/pearlsonic/internal/providers/music"
	musicdomain "github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCreditUnitMs = 60_000

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       domain.Repository
	Ledger     ledgerdomain.Service
	Providers  *music.Registry
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	ledger       ledgerdomain.Service
	providers    *music.Registry
	clock        clock.Clock
	obsMetrics   *obsmetrics.Metrics
	timeout      time.Duration
	creditUnitMs int64
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	timeout := p.Cfg.Music.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("generation.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		ledger:       p.Ledger,
		providers:    p.Providers,
		clock:        clk,
		obsMetrics:   p.ObsMetrics,
		timeout:      timeout,
		creditUnitMs: p.Cfg.Music.CreditUnit.Milliseconds(),
	}
}

// CreditsForDuration charges one credit per started unit, never less than one.
func CreditsForDuration(durationMs, unitMs int64) int64 {
	if unitMs <= 0 {
		unitMs = defaultCreditUnitMs
	}
	credits := (durationMs + unitMs - 1) / unitMs
	if credits < 1 {
		return 1
	}
	return credits
}

func (s *Service) Submit(ctx context.Context, userID snowflake.ID, req domain.SubmitRequest) (*domain.SubmitResult, error) {
	log := obslogger.WithContext(ctx, s.log)
	adapter := s.providers.Default()

	req.Normalize()
	if err := req.Validate(adapter.Limits()); err != nil {
		return nil, err
	}

	cost := CreditsForDuration(req.DurationMs, s.creditUnitMs)
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.Credits < cost {
		s.obsMetrics.RecordGenerationSubmit(ctx, adapter.Name(), "insufficient_credits")
		return nil, &ledgerdomain.InsufficientCreditsError{Required: cost, Available: balance.Credits}
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	submission, err := adapter.Submit(submitCtx, req)
	cancel()
	if err != nil {
		log.Warn("provider rejected submission", zap.String("provider", adapter.Name()), zap.Error(err))
		s.obsMetrics.RecordProviderError(ctx, adapter.Name(), "submit")
		s.obsMetrics.RecordGenerationSubmit(ctx, adapter.Name(), "provider_error")
		return nil, musicdomain.ErrProviderUnavailable
	}

	now := s.clock.Now().UTC()
	job := &domain.Job{
		ID:             s.genID.Generate(),
		UserID:         userID,
		Prompt:         req.Prompt,
		Genre:          req.Genre,
		Mood:           req.Mood,
		DurationMs:     req.DurationMs,
		Instrumental:   req.Instrumental,
		OutputFormat:   string(req.OutputFormat),
		Provider:       adapter.Name(),
		Status:         domain.JobStatusGenerating,
		Progress:       0,
		CreditsCharged: cost,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var debit *ledgerdomain.DebitResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, job); err != nil {
			return err
		}
		attached, err := s.repo.AttachProviderRef(ctx, tx, job.ID, submission.Ref)
		if err != nil {
			return err
		}
		if !attached {
			return fmt.Errorf("%w: %w", musicdomain.ErrProviderUnavailable, musicdomain.ErrMissingRef)
		}
		job.ProviderRef = strings.TrimSpace(submission.Ref)

		debit, err = s.ledger.ReserveAndDebitTx(ctx, tx, ledgerdomain.DebitRequest{
			UserID:      userID,
			Amount:      cost,
			JobID:       job.ID,
			Description: describe(req),
		})
		return err
	})
	if err != nil {
		// The vendor accepted work nobody will pay for; leave a trail.
		log.Warn("orphaned provider job",
			zap.String("provider", adapter.Name()),
			zap.String("provider_ref", submission.Ref),
			zap.Error(err),
		)
		s.obsMetrics.RecordGenerationSubmit(ctx, adapter.Name(), "debit_failed")
		return nil, err
	}

	s.obsMetrics.RecordGenerationSubmit(ctx, adapter.Name(), "accepted")
	log.Info("generation submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("provider", adapter.Name()),
		zap.Int64("credits", cost),
	)
	return &domain.SubmitResult{
		Job:              job,
		EstimatedTimeSec: submission.EstimatedTimeSec,
		CreditsCharged:   cost,
		RemainingCredits: debit.NewBalance,
	}, nil
}

func (s *Service) Poll(ctx context.Context, userID, jobID snowflake.ID) (*domain.Job, error) {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return s.Refresh(ctx, job)
}

func (s *Service) Refresh(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job == nil {
		return nil, domain.ErrJobNotFound
	}
	if job.Status.Terminal() || strings.TrimSpace(job.ProviderRef) == "" {
		return job, nil
	}
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("job_id", job.ID.String()),
		zap.String("provider", job.Provider),
	)

	adapter, err := s.providers.Get(job.Provider)
	if err != nil {
		log.Warn("job provider not available", zap.Error(err))
		return job, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, s.timeout)
	report, err := adapter.GetStatus(pollCtx, job.ProviderRef)
	cancel()
	if err != nil {
		log.Warn("provider status check failed", zap.Error(err))
		s.obsMetrics.RecordProviderError(ctx, job.Provider, "status")
		return job, nil
	}

	update, ok := toUpdate(report)
	if !ok {
		return job, nil
	}

	applied, err := s.repo.ApplyStatus(ctx, s.db, job.ID, update, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if applied && update.Status.Terminal() {
		s.obsMetrics.RecordJobTransition(ctx, job.Provider, string(update.Status))
		log.Info("job finished", zap.String("status", string(update.Status)))
	}
	return s.repo.FindByID(ctx, s.db, job.ID)
}

func toUpdate(report *musicdomain.StatusReport) (domain.StatusUpdate, bool) {
	if report == nil {
		return domain.StatusUpdate{}, false
	}
	update := domain.StatusUpdate{
		Progress:     report.Progress,
		AudioURL:     report.AudioURL,
		CoverURL:     report.CoverURL,
		Title:        report.Title,
		ErrorMessage: report.ErrorMessage,
	}
	switch report.Status {
	case musicdomain.StatusGenerating:
		update.Status = domain.JobStatusGenerating
	case musicdomain.StatusCompleted:
		update.Status = domain.JobStatusCompleted
	case musicdomain.StatusFailed:
		update.Status = domain.JobStatusFailed
		if strings.TrimSpace(update.ErrorMessage) == "" {
			update.ErrorMessage = "Generation failed"
		}
	default:
		return domain.StatusUpdate{}, false
	}
	return update, true
}

func (s *Service) Get(ctx context.Context, userID, jobID snowflake.ID) (*domain.Job, error) {
	if jobID == 0 {
		return nil, domain.ErrInvalidJobID
	}
	return s.repo.FindByIDForUser(ctx, s.db, jobID, userID)
}

func (s *Service) History(ctx context.Context, userID snowflake.ID, limit int) ([]domain.Job, error) {
	switch {
	case limit <= 0:
		limit = domain.DefaultHistoryLimit
	case limit > domain.MaxHistoryLimit:
		limit = domain.MaxHistoryLimit
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit)
}

func (s *Service) DownloadURL(ctx context.Context, userID, jobID snowflake.ID) (*domain.Download, error) {
	job, err := s.Get(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted || strings.TrimSpace(job.AudioURL) == "" {
		return nil, domain.ErrJobNotReady
	}
	return &domain.Download{URL: job.AudioURL, FileName: fileName(job)}, nil
}

func fileName(job *domain.Job) string {
	base := slug.Make(job.Title)
	if base == "" {
		base = "pearlsonic-" + job.ID.String()
	}
	ext := ".mp3"
	if musicdomain.OutputFormat(job.OutputFormat) == musicdomain.FormatPCM {
		ext = ".wav"
	}
	return base + ext
}

func describe(req domain.SubmitRequest) string {
	parts := []string{"Music generation"}
	if req.Genre != "" {
		parts = append(parts, req.Genre)
	}
	if req.Mood != "" {
		parts = append(parts, req.Mood)
	}
	return strings.Join(parts, " - ")
}
