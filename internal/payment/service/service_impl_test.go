package service_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/pearlsonic/internal/auth/domain"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/pearlsonic/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/pearlsonic/internal/ledger/service"
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters"
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters/paddle"
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/pearlsonic/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/pearlsonic/internal/payment/repository"
	paymentservice "github.com/smallbiznis/pearlsonic/internal/payment/service"
	"github.com/smallbiznis/pearlsonic/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const paddleSecret = "pdl_ntfset_test"

type harness struct {
	db     *gorm.DB
	node   *snowflake.Node
	now    time.Time
	ledger ledgerdomain.Service
	svc    paymentdomain.Service
}

func newHarness(t *testing.T, payment config.PaymentConfig) *harness {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return newHarnessWith(t, conn, payment)
}

func newHarnessWith(t *testing.T, conn *gorm.DB, payment config.PaymentConfig) *harness {
	t.Helper()

	if err := conn.AutoMigrate(&authdomain.User{}, &ledgerdomain.Transaction{}, &paymentdomain.EventRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(11)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	now := time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepo.Provide(),
		Clock: clk,
	})
	catalog := config.PricingCatalog{Plans: []config.Plan{
		{ID: "pri_pro", Key: "pro", Credits: 3, Price: "14.99"},
		{ID: "pri_pro_monthly", Key: "pro_monthly", Credits: 3, Price: "4.99", Billing: config.BillingMonthly},
	}}

	svc := paymentservice.NewService(paymentservice.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Cfg:       config.Config{Payment: payment},
		Repo:      paymentrepo.Provide(),
		Adapters:  adapters.Provide(config.Config{Payment: payment}),
		LedgerSvc: ledger,
		Pricing:   config.NewStaticPricingHolder(catalog),
		Clock:     clk,
	})

	return &harness{db: conn, node: node, now: now, ledger: ledger, svc: svc}
}

func (h *harness) createUser(t *testing.T, credits int64) snowflake.ID {
	t.Helper()
	user := authdomain.User{
		ID:           h.node.Generate(),
		Email:        fmt.Sprintf("buyer-%d@example.com", h.node.Generate().Int64()),
		PasswordHash: "x",
		Credits:      credits,
		CreatedAt:    h.now,
		UpdatedAt:    h.now,
	}
	if err := h.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user.ID
}

func (h *harness) deliver(t *testing.T, body string) error {
	t.Helper()
	headers := http.Header{}
	headers.Set(paddle.SignatureHeader, paddle.Sign([]byte(body), paddleSecret, h.now))
	return h.svc.Ingest(context.Background(), "paddle", []byte(body), headers)
}

func (h *harness) user(t *testing.T, id snowflake.ID) authdomain.User {
	t.Helper()
	var user authdomain.User
	if err := h.db.Where("id = ?", id).Take(&user).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	return user
}

func (h *harness) event(t *testing.T, eventID string) paymentdomain.EventRecord {
	t.Helper()
	var record paymentdomain.EventRecord
	if err := h.db.Where("provider = ? AND provider_event_id = ?", "paddle", eventID).Take(&record).Error; err != nil {
		t.Fatalf("load event %s: %v", eventID, err)
	}
	return record
}

func purchaseBody(eventID, txnID string, userID snowflake.ID, price string) string {
	return fmt.Sprintf(`{"event_id":%q,"event_type":"transaction.completed","data":{"id":%q,"custom_data":{"userId":%q},"items":[{"price_id":%q,"price":{"id":%q,"gross":"1499"}}]}}`,
		eventID, txnID, userID.String(), price, price)
}

func TestIngestCreditsPurchaseOnce(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	userID := h.createUser(t, 1)
	body := purchaseBody("evt_1", "txn_1", userID, "pri_pro")

	if err := h.deliver(t, body); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := h.user(t, userID).Credits; got != 4 {
		t.Fatalf("expected 4 credits, got %d", got)
	}
	record := h.event(t, "evt_1")
	if record.ProcessedAt == nil || record.ProcessingError != "" {
		t.Fatalf("expected processed event, got %+v", record)
	}

	if err := h.deliver(t, body); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	// Same transaction under a new envelope id is still one credit.
	if err := h.deliver(t, purchaseBody("evt_1b", "txn_1", userID, "pri_pro")); err != nil {
		t.Fatalf("replayed transaction: %v", err)
	}
	if got := h.user(t, userID).Credits; got != 4 {
		t.Fatalf("expected credits unchanged by redelivery, got %d", got)
	}

	txns, err := h.ledger.ListTransactions(context.Background(), userID, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txns) != 1 || txns[0].Type != ledgerdomain.TransactionPurchase || txns[0].Amount != 3 {
		t.Fatalf("unexpected transactions: %+v", txns)
	}

	var events int64
	h.db.Model(&paymentdomain.EventRecord{}).Count(&events)
	if events != 2 {
		t.Fatalf("expected 2 stored deliveries, got %d", events)
	}
}

func TestIngestRejectsBadSignatures(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	userID := h.createUser(t, 0)
	body := purchaseBody("evt_2", "txn_2", userID, "pri_pro")

	headers := http.Header{}
	headers.Set(paddle.SignatureHeader, paddle.Sign([]byte(body), paddleSecret, h.now))
	tampered := strings.Replace(body, "txn_2", "txn_X", 1)
	err := h.svc.Ingest(context.Background(), "paddle", []byte(tampered), headers)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	headers.Set(paddle.SignatureHeader, paddle.Sign([]byte(body), paddleSecret, h.now.Add(-10*time.Minute)))
	err = h.svc.Ingest(context.Background(), "paddle", []byte(body), headers)
	if !errors.Is(err, paymentdomain.ErrSignatureExpired) {
		t.Fatalf("expected expired signature, got %v", err)
	}

	err = h.svc.Ingest(context.Background(), "paddle", []byte(body), http.Header{})
	if !paymentdomain.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	if got := h.user(t, userID).Credits; got != 0 {
		t.Fatalf("expected no credits, got %d", got)
	}
	var events int64
	h.db.Model(&paymentdomain.EventRecord{}).Count(&events)
	if events != 0 {
		t.Fatalf("unauthenticated deliveries must not be stored, got %d", events)
	}
}

func TestIngestConfigurationErrors(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})

	err := h.svc.Ingest(context.Background(), "stripe", []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
	err = h.svc.Ingest(context.Background(), "lemonsqueezy", []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}

func TestIngestIgnoresUnknownEvents(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	userID := h.createUser(t, 2)

	body := fmt.Sprintf(`{"event_id":"evt_3","event_type":"customer.updated","data":{"id":"ctm_1","custom_data":{"userId":%q}}}`, userID.String())
	if err := h.deliver(t, body); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if record := h.event(t, "evt_3"); record.ProcessedAt == nil {
		t.Fatalf("ignored events are still marked processed")
	}
	if got := h.user(t, userID).Credits; got != 2 {
		t.Fatalf("expected credits unchanged, got %d", got)
	}
}

func TestIngestUnknownPriceRejectedByDefault(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret, UnknownPricePolicy: config.UnknownPricePolicyReject})
	userID := h.createUser(t, 0)

	if err := h.deliver(t, purchaseBody("evt_4", "txn_4", userID, "pri_unlisted")); err != nil {
		t.Fatalf("post-verification failures must be swallowed, got %v", err)
	}
	record := h.event(t, "evt_4")
	if record.ProcessedAt != nil || !strings.Contains(record.ProcessingError, "unknown_price") {
		t.Fatalf("expected stored processing error, got %+v", record)
	}
	if got := h.user(t, userID).Credits; got != 0 {
		t.Fatalf("expected no credits, got %d", got)
	}
}

func TestIngestUnknownPriceEstimate(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{
		PaddleWebhookSecret:    paddleSecret,
		UnknownPricePolicy:     config.UnknownPricePolicyEstimate,
		CreditsPerCurrencyUnit: "3",
	})
	userID := h.createUser(t, 0)

	if err := h.deliver(t, purchaseBody("evt_5", "txn_5", userID, "pri_unlisted")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	// 14.99 * 3 rounded down.
	if got := h.user(t, userID).Credits; got != 44 {
		t.Fatalf("expected 44 estimated credits, got %d", got)
	}
}

func TestIngestSubscriptionLifecycle(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	userID := h.createUser(t, 0)

	activated := fmt.Sprintf(`{"event_id":"evt_6","event_type":"subscription.activated","data":{"id":"sub_1","transaction_id":"txn_6","custom_data":{"userId":%q},"items":[{"price_id":"pri_pro_monthly"}]}}`, userID.String())
	if err := h.deliver(t, activated); err != nil {
		t.Fatalf("activated: %v", err)
	}
	user := h.user(t, userID)
	if !user.SubscriptionActive || user.SubscriptionID == nil || *user.SubscriptionID != "sub_1" || user.Credits != 3 {
		t.Fatalf("unexpected user after activation: %+v", user)
	}

	renewed := fmt.Sprintf(`{"event_id":"evt_7","event_type":"subscription.updated","data":{"id":"sub_1","custom_data":{"userId":%q},"items":[{"price_id":"pri_pro_monthly"}],"current_billing_period":{"starts_at":"2026-06-10T00:00:00Z"}}}`, userID.String())
	if err := h.deliver(t, renewed); err != nil {
		t.Fatalf("renewed: %v", err)
	}

	cancelled := fmt.Sprintf(`{"event_id":"evt_8","event_type":"subscription.cancelled","data":{"id":"sub_1","custom_data":{"userId":%q}}}`, userID.String())
	if err := h.deliver(t, cancelled); err != nil {
		t.Fatalf("cancelled: %v", err)
	}
	user = h.user(t, userID)
	if user.SubscriptionActive || user.SubscriptionID != nil {
		t.Fatalf("expected subscription cleared, got %+v", user)
	}
	if user.Credits != 6 {
		t.Fatalf("cancellation keeps purchased credits, got %d", user.Credits)
	}
}

func TestIngestActivationAfterTransactionCompleted(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	userID := h.createUser(t, 0)

	completed := fmt.Sprintf(`{"event_id":"evt_20","event_type":"transaction.completed","data":{"id":"txn_20","subscription_id":"sub_20","custom_data":{"userId":%q},"items":[{"price_id":"pri_pro_monthly"}]}}`, userID.String())
	if err := h.deliver(t, completed); err != nil {
		t.Fatalf("completed: %v", err)
	}
	activated := fmt.Sprintf(`{"event_id":"evt_21","event_type":"subscription.activated","data":{"id":"sub_20","transaction_id":"txn_20","custom_data":{"userId":%q},"items":[{"price_id":"pri_pro_monthly"}]}}`, userID.String())
	if err := h.deliver(t, activated); err != nil {
		t.Fatalf("activated: %v", err)
	}

	user := h.user(t, userID)
	if !user.SubscriptionActive || user.SubscriptionID == nil || *user.SubscriptionID != "sub_20" {
		t.Fatalf("expected active subscription sub_20, got %+v", user)
	}
	if user.Credits != 3 {
		t.Fatalf("shared transaction id must credit once, got %d", user.Credits)
	}
	if h.event(t, "evt_21").ProcessedAt == nil {
		t.Fatalf("expected activation event processed")
	}
}

func TestIngestActivationWithUnknownPriceStillActivates(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret, UnknownPricePolicy: config.UnknownPricePolicyReject})
	userID := h.createUser(t, 0)

	activated := fmt.Sprintf(`{"event_id":"evt_22","event_type":"subscription.activated","data":{"id":"sub_22","transaction_id":"txn_22","custom_data":{"userId":%q},"items":[{"price_id":"pri_legacy"}]}}`, userID.String())
	if err := h.deliver(t, activated); err != nil {
		t.Fatalf("activated: %v", err)
	}

	user := h.user(t, userID)
	if !user.SubscriptionActive || user.Credits != 0 {
		t.Fatalf("expected active subscription without credits, got %+v", user)
	}
	record := h.event(t, "evt_22")
	if record.ProcessedAt != nil || !strings.Contains(record.ProcessingError, "unknown_price") {
		t.Fatalf("expected grant flagged for reconciliation, got %+v", record)
	}

	// The original ref stays free for a manual credit.
	res, err := h.ledger.Credit(context.Background(), ledgerdomain.CreditRequest{
		UserID:      userID,
		Amount:      3,
		Type:        ledgerdomain.TransactionSubscriptionActivated,
		ExternalRef: "txn_22",
	})
	if err != nil || res.Duplicate {
		t.Fatalf("manual credit: res=%+v err=%v", res, err)
	}
	if got := h.user(t, userID).Credits; got != 3 {
		t.Fatalf("expected 3 credits after reconciliation, got %d", got)
	}
}

func TestIngestConcurrentDuplicateDeliveries(t *testing.T) {
	conn, err := db.NewConcurrentTest(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	h := newHarnessWith(t, conn, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	userID := h.createUser(t, 0)
	body := purchaseBody("evt_30", "txn_30", userID, "pri_pro")

	const deliveries = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			headers := http.Header{}
			headers.Set(paddle.SignatureHeader, paddle.Sign([]byte(body), paddleSecret, h.now))
			errs <- h.svc.Ingest(context.Background(), "paddle", []byte(body), headers)
		}()
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	if got := h.user(t, userID).Credits; got != 3 {
		t.Fatalf("expected a single credit of 3, got %d", got)
	}
	var txns, events int64
	h.db.Model(&ledgerdomain.Transaction{}).Where("external_ref = ?", "txn_30").Count(&txns)
	h.db.Model(&paymentdomain.EventRecord{}).Where("provider_event_id = ?", "evt_30").Count(&events)
	if txns != 1 || events != 1 {
		t.Fatalf("expected one ledger row and one event row, got %d and %d", txns, events)
	}
	if h.event(t, "evt_30").ProcessedAt == nil {
		t.Fatalf("expected event processed")
	}
}

func TestIngestUnknownUserIsRecorded(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	ghost := h.node.Generate()

	if err := h.deliver(t, purchaseBody("evt_9", "txn_9", ghost, "pri_pro")); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	record := h.event(t, "evt_9")
	if record.ProcessingError != ledgerdomain.ErrUserNotFound.Error() {
		t.Fatalf("expected user not found to be recorded, got %q", record.ProcessingError)
	}
	var txns int64
	h.db.Model(&ledgerdomain.Transaction{}).Count(&txns)
	if txns != 0 {
		t.Fatalf("expected rollback of ledger row, got %d", txns)
	}
}

func TestIngestRetriesFailedEventOnRedelivery(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{PaddleWebhookSecret: paddleSecret})
	userID := h.node.Generate()
	body := purchaseBody("evt_10", "txn_10", userID, "pri_pro")

	if err := h.deliver(t, body); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if h.event(t, "evt_10").ProcessedAt != nil {
		t.Fatalf("expected unprocessed event")
	}

	user := authdomain.User{ID: userID, Email: "late@example.com", PasswordHash: "x", CreatedAt: h.now, UpdatedAt: h.now}
	if err := h.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := h.deliver(t, body); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if h.event(t, "evt_10").ProcessedAt == nil {
		t.Fatalf("expected event processed on retry")
	}
	if got := h.user(t, userID).Credits; got != 3 {
		t.Fatalf("expected 3 credits, got %d", got)
	}
}

func TestStripeCheckoutCredits(t *testing.T) {
	h := newHarness(t, config.PaymentConfig{StripeWebhookSecret: "whsec_test"})
	userID := h.createUser(t, 0)

	body := fmt.Sprintf(`{"id":"evt_s1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"userId":%q,"credits":"5"}}}}`, userID.String())
	headers := http.Header{}
	headers.Set(stripe.SignatureHeader, stripe.Sign([]byte(body), "whsec_test", h.now))
	if err := h.svc.Ingest(context.Background(), "Stripe", []byte(body), headers); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if got := h.user(t, userID).Credits; got != 5 {
		t.Fatalf("expected 5 credits, got %d", got)
	}
}

func TestEstimateCredits(t *testing.T) {
	three := decimal.NewFromInt(3)
	cases := []struct {
		gross string
		want  int64
	}{
		{gross: "999", want: 29},
		{gross: "1499", want: 44},
		{gross: "33", want: 0},
		{gross: "0", want: 0},
		{gross: "-500", want: 0},
	}
	for _, tc := range cases {
		got := paymentservice.EstimateCredits(decimal.RequireFromString(tc.gross), three)
		if got != tc.want {
			t.Fatalf("gross %s: expected %d, got %d", tc.gross, tc.want, got)
		}
	}
	if got := paymentservice.EstimateCredits(decimal.NewFromInt(1000), decimal.Zero); got != 0 {
		t.Fatalf("zero rate must not credit, got %d", got)
	}
}
