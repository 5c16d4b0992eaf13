package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       ledgerdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       ledgerdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetBalance(ctx context.Context, userID snowflake.ID) (*ledgerdomain.Balance, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	return s.repo.LoadBalance(ctx, s.db, userID)
}

func (s *Service) ReserveAndDebit(ctx context.Context, req ledgerdomain.DebitRequest) (*ledgerdomain.DebitResult, error) {
	var result *ledgerdomain.DebitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ReserveAndDebitTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) ReserveAndDebitTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.DebitRequest) (*ledgerdomain.DebitResult, error) {
	if req.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if req.JobID == 0 {
		return nil, ledgerdomain.ErrInvalidJob
	}

	ok, err := s.repo.DecrementIfAffordable(ctx, tx, req.UserID, req.Amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		balance, err := s.repo.LoadBalance(ctx, tx, req.UserID)
		if err != nil {
			return nil, err
		}
		return nil, &ledgerdomain.InsufficientCreditsError{
			Required:  req.Amount,
			Available: balance.Credits,
		}
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Music generation"
	}
	jobID := req.JobID
	txn := &ledgerdomain.Transaction{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		Amount:      -req.Amount,
		Type:        ledgerdomain.TransactionUsage,
		JobID:       &jobID,
		Description: description,
		CreatedAt:   s.clock.Now().UTC(),
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}

	balance, err := s.repo.LoadBalance(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(ledgerdomain.TransactionUsage))
	return &ledgerdomain.DebitResult{Transaction: txn, NewBalance: balance.Credits}, nil
}

func (s *Service) Credit(ctx context.Context, req ledgerdomain.CreditRequest) (*ledgerdomain.CreditResult, error) {
	if req.UserID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if req.Amount < 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if !req.Type.Valid() || req.Type == ledgerdomain.TransactionUsage {
		return nil, ledgerdomain.ErrInvalidType
	}
	externalRef := strings.TrimSpace(req.ExternalRef)
	if externalRef == "" {
		return nil, ledgerdomain.ErrInvalidExternalRef
	}

	result := &ledgerdomain.CreditResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txn := &ledgerdomain.Transaction{
			ID:          s.genID.Generate(),
			UserID:      req.UserID,
			Amount:      req.Amount,
			Type:        req.Type,
			ExternalRef: &externalRef,
			Description: strings.TrimSpace(req.Description),
			CreatedAt:   s.clock.Now().UTC(),
		}
		inserted, err := s.repo.InsertTransactionOnce(ctx, tx, txn)
		if err != nil {
			return err
		}
		if !inserted {
			result.Duplicate = true
			// Paddle reuses the transaction id as the ref for both the purchase and
			// the subscription activation, so the state change must still land.
			if req.Subscription != nil {
				if err := s.repo.ApplySubscription(ctx, tx, req.UserID, *req.Subscription); err != nil {
					return err
				}
			}
			balance, err := s.repo.LoadBalance(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			result.NewBalance = balance.Credits
			return nil
		}

		found, err := s.repo.Increment(ctx, tx, req.UserID, req.Amount)
		if err != nil {
			return err
		}
		if !found {
			return ledgerdomain.ErrUserNotFound
		}
		if req.Subscription != nil {
			if err := s.repo.ApplySubscription(ctx, tx, req.UserID, *req.Subscription); err != nil {
				return err
			}
		}

		balance, err := s.repo.LoadBalance(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		result.Transaction = txn
		result.NewBalance = balance.Credits
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		s.log.Info("credit already applied",
			zap.String("user_id", req.UserID.String()),
			zap.String("external_ref", externalRef),
		)
		return result, nil
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(req.Type))
	s.log.Info("credit applied",
		zap.String("user_id", req.UserID.String()),
		zap.String("type", string(req.Type)),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance", result.NewBalance),
	)
	return result, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID snowflake.ID, limit int) ([]ledgerdomain.Transaction, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	switch {
	case limit <= 0:
		limit = ledgerdomain.DefaultListLimit
	case limit > ledgerdomain.MaxListLimit:
		limit = ledgerdomain.MaxListLimit
	}
	return s.repo.ListTransactions(ctx, s.db, userID, limit)
}

func (s *Service) Reconcile(ctx context.Context, userID snowflake.ID) (*ledgerdomain.Reconciliation, error) {
	if userID == 0 {
		return nil, ledgerdomain.ErrInvalidUser
	}
	result := &ledgerdomain.Reconciliation{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.repo.LoadBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		sum, err := s.repo.SumAmounts(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Balance = *balance
		result.LedgerSum = sum
		result.Drift = balance.Credits - sum
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Drift != 0 {
		s.log.Warn("ledger drift",
			zap.String("user_id", userID.String()),
			zap.Int64("balance", result.Balance.Credits),
			zap.Int64("ledger_sum", result.LedgerSum),
		)
	}
	return result, nil
}
