package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	obslogger "github.com/smallbiznis/pearlsonic/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/pearlsonic/internal/observability/metrics"
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/pearlsonic/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	LedgerSvc  ledgerdomain.Service
	Pricing    *config.PricingHolder `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        paymentdomain.Repository
	adapters    *adapters.Registry
	ledgerSvc   ledgerdomain.Service
	pricing     *config.PricingHolder
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
	pricePolicy string
	perUnit     decimal.Decimal
}

func NewService(p Params) paymentdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	pricing := p.Pricing
	if pricing == nil {
		pricing = config.NewStaticPricingHolder(config.DefaultPricingCatalog())
	}
	perUnit, err := decimal.NewFromString(strings.TrimSpace(p.Cfg.Payment.CreditsPerCurrencyUnit))
	if err != nil {
		perUnit = decimal.Zero
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		adapters:   p.Adapters,
		ledgerSvc:  p.LedgerSvc,
		pricing:    pricing,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
		pricePolicy: p.Cfg.Payment.UnknownPricePolicy,
		perUnit:     perUnit,
	}
}

func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	log := obslogger.WithContext(ctx, s.log).With(zap.String("provider", provider))

	adapter, err := s.adapters.Resolve(provider, s.pricing.Get(), s.clock)
	if errors.Is(err, paymentdomain.ErrMissingSecret) {
		log.Error("webhook secret not configured")
	}
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		log.Warn("webhook signature rejected", zap.Error(err))
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "", "rejected")
		return err
	}

	s.process(ctx, log, adapter, provider, payload)
	return nil
}

// process never returns an error: the delivery is authentic, so failures are
// stored on the event row for reconciliation instead of asking for a retry.
func (s *Service) process(ctx context.Context, log *zap.Logger, adapter paymentdomain.Adapter, provider string, payload []byte) {
	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		log.Warn("unparseable webhook payload", zap.Error(err))
		s.obsMetrics.RecordPaymentEvent(ctx, provider, "", "invalid")
		return
	}
	log = log.With(zap.String("event_id", event.ProviderEventID), zap.String("event_type", event.EventType))

	now := s.clock.Now().UTC()
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.EventType,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		log.Error("store webhook event failed", zap.Error(err))
		return
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil || stored == nil {
			log.Error("load stored webhook event failed", zap.Error(err))
			return
		}
		if stored.ProcessedAt != nil {
			log.Info("webhook event already processed")
			s.obsMetrics.RecordPaymentEvent(ctx, provider, event.EventType, "duplicate")
			return
		}
		record = stored
	}

	op, err := adapter.Classify(ctx, event)
	if errors.Is(err, paymentdomain.ErrEventIgnored) {
		log.Info("webhook event ignored")
		s.markProcessed(ctx, log, record.ID, now)
		s.obsMetrics.RecordPaymentEvent(ctx, provider, event.EventType, "ignored")
		return
	}
	if err == nil {
		err = s.apply(ctx, log, op)
	}
	if err != nil {
		log.Error("webhook event not applied", zap.Error(err))
		if markErr := s.repo.MarkFailed(ctx, s.db, record.ID, err.Error()); markErr != nil {
			log.Error("record webhook failure failed", zap.Error(markErr))
		}
		s.obsMetrics.RecordPaymentEvent(ctx, provider, event.EventType, "failed")
		return
	}

	s.markProcessed(ctx, log, record.ID, now)
	s.obsMetrics.RecordPaymentEvent(ctx, provider, event.EventType, "processed")
}

func (s *Service) apply(ctx context.Context, log *zap.Logger, op paymentdomain.Operation) error {
	if op.Kind == paymentdomain.OperationCredit && !op.PriceKnown {
		credits, err := s.resolveUnknownPrice(op)
		if err != nil {
			if op.Subscription != nil {
				// The subscription state is known even when the grant is not. The
				// credit stays flagged on the event row for reconciliation.
				if applyErr := s.applySubscriptionOnly(ctx, log, op); applyErr != nil {
					return applyErr
				}
			}
			return err
		}
		log.Warn("credits estimated from gross amount",
			zap.String("price_id", op.PriceID),
			zap.String("gross", op.Gross.String()),
			zap.Int64("credits", credits),
		)
		op.Amount = credits
	}

	result, err := s.ledgerSvc.Credit(ctx, ledgerdomain.CreditRequest{
		UserID:       op.UserID,
		Amount:       op.Amount,
		Type:         op.Type,
		ExternalRef:  op.ExternalRef,
		Description:  op.Description,
		Subscription: op.Subscription,
	})
	if err != nil {
		return err
	}
	if !result.Duplicate {
		log.Info("webhook applied",
			zap.String("user_id", op.UserID.String()),
			zap.String("type", string(op.Type)),
			zap.Int64("amount", op.Amount),
		)
	}
	return nil
}

// applySubscriptionOnly writes a zero-credit record carrying the subscription
// change. Its ref is distinct from op.ExternalRef so the grant itself can
// still be credited later under the original ref.
func (s *Service) applySubscriptionOnly(ctx context.Context, log *zap.Logger, op paymentdomain.Operation) error {
	_, err := s.ledgerSvc.Credit(ctx, ledgerdomain.CreditRequest{
		UserID:       op.UserID,
		Amount:       0,
		Type:         op.Type,
		ExternalRef:  "unpriced:" + op.ExternalRef,
		Description:  op.Description + " (credits pending reconciliation)",
		Subscription: op.Subscription,
	})
	if err != nil {
		return err
	}
	log.Warn("subscription state applied without credits",
		zap.String("user_id", op.UserID.String()),
		zap.String("price_id", op.PriceID),
	)
	return nil
}

func (s *Service) resolveUnknownPrice(op paymentdomain.Operation) (int64, error) {
	if s.pricePolicy != config.UnknownPricePolicyEstimate {
		return 0, fmt.Errorf("%w: %q", paymentdomain.ErrUnknownPrice, op.PriceID)
	}
	credits := EstimateCredits(op.Gross, s.perUnit)
	if credits <= 0 {
		return 0, fmt.Errorf("%w: %q has no usable gross amount", paymentdomain.ErrUnknownPrice, op.PriceID)
	}
	return credits, nil
}

// EstimateCredits converts a gross amount in minor currency units into
// credits at perUnit credits per major unit, rounding down.
func EstimateCredits(grossMinor, perUnit decimal.Decimal) int64 {
	if !grossMinor.IsPositive() || !perUnit.IsPositive() {
		return 0
	}
	return grossMinor.Div(decimal.NewFromInt(100)).Mul(perUnit).Floor().IntPart()
}

func (s *Service) markProcessed(ctx context.Context, log *zap.Logger, id snowflake.ID, at time.Time) {
	if err := s.repo.MarkProcessed(ctx, s.db, id, at); err != nil {
		log.Error("mark webhook processed failed", zap.Error(err))
	}
}
