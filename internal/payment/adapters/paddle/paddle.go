// Package paddle verifies and classifies Paddle Billing webhooks.
package paddle

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/pearlsonic/internal/payment/domain"
)

const (
	Provider        = "paddle"
	SignatureHeader = "Paddle-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return Provider
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.Adapter, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, paymentdomain.ErrMissingSecret
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = paymentdomain.DefaultSignatureTolerance
	}
	return &Adapter{
		webhookSecret: secret,
		catalog:       cfg.Catalog,
		clock:         clk,
		tolerance:     tolerance,
	}, nil
}

type Adapter struct {
	webhookSecret string
	catalog       config.PricingCatalog
	clock         clock.Clock
	tolerance     time.Duration
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	return Verify(payload, headers.Get(SignatureHeader), a.webhookSecret, a.clock.Now(), a.tolerance)
}

// Verify checks a `ts=<unix>;h1=<hex>` header against an HMAC-SHA256 of the
// raw body. Timestamps further than tolerance from now are rejected.
func Verify(body []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return paymentdomain.ErrMissingSignature
	}
	if secret == "" {
		return paymentdomain.ErrMissingSecret
	}

	ts, signatures, err := parseSignature(header)
	if err != nil {
		return err
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > tolerance {
		return paymentdomain.ErrSignatureExpired
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

// Sign builds a header value for body. Used by tests and local tooling.
func Sign(body []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return fmt.Sprintf("ts=%d;h1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func parseSignature(header string) (int64, []string, error) {
	var rawTS string
	signatures := []string{}
	for _, part := range strings.Split(header, ";") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "ts":
			rawTS = value
		case "h1":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	if rawTS == "" || len(signatures) == 0 {
		return 0, nil, paymentdomain.ErrMissingSignature
	}
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil || ts <= 0 {
		return 0, nil, paymentdomain.ErrInvalidSignature
	}
	return ts, signatures, nil
}

type paddleEvent struct {
	EventID        string          `json:"event_id"`
	NotificationID string          `json:"notification_id"`
	EventType      string          `json:"event_type"`
	EventName      string          `json:"event_name"`
	OccurredAt     string          `json:"occurred_at"`
	Data           json.RawMessage `json:"data"`
}

type paddleData struct {
	ID                   string         `json:"id"`
	TransactionID        string         `json:"transaction_id"`
	SubscriptionID       string         `json:"subscription_id"`
	CustomData           map[string]any `json:"custom_data"`
	Items                []paddleItem   `json:"items"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
	Details              *paddleDetails `json:"details"`
}

type paddleItem struct {
	PriceID string       `json:"price_id"`
	Price   *paddlePrice `json:"price"`
}

type paddlePrice struct {
	ID    string          `json:"id"`
	Gross decimal.Decimal `json:"gross"`
}

type paddlePeriod struct {
	StartsAt string `json:"starts_at"`
	EndsAt   string `json:"ends_at"`
}

type paddleDetails struct {
	Totals struct {
		GrandTotal decimal.Decimal `json:"grand_total"`
	} `json:"totals"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event paddleEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	eventType := strings.TrimSpace(event.EventType)
	if eventType == "" {
		eventType = strings.TrimSpace(event.EventName)
	}
	if eventType == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(event.NotificationID)
	}
	if eventID == "" {
		// Legacy payloads carry no envelope id; the entity id is stable per event type.
		var data paddleData
		if err := decodeData(event.Data, &data); err != nil {
			return nil, err
		}
		if strings.TrimSpace(data.ID) == "" {
			return nil, paymentdomain.ErrInvalidEvent
		}
		eventID = eventType + ":" + strings.TrimSpace(data.ID)
	}

	occurredAt := a.clock.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(event.OccurredAt)); err == nil {
		occurredAt = parsed.UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:        Provider,
		ProviderEventID: eventID,
		EventType:       eventType,
		OccurredAt:      occurredAt,
		Data:            event.Data,
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) Classify(ctx context.Context, event *paymentdomain.PaymentEvent) (paymentdomain.Operation, error) {
	return Classify(event, a.catalog)
}

// Classify maps a Paddle event to its ledger effect. Unlisted event types
// return ErrEventIgnored.
func Classify(event *paymentdomain.PaymentEvent, catalog config.PricingCatalog) (paymentdomain.Operation, error) {
	if event == nil {
		return paymentdomain.Operation{}, paymentdomain.ErrInvalidEvent
	}

	switch event.EventType {
	case "payment.succeeded", "payment.completed", "transaction.completed",
		"payment.failed",
		"subscription.activated", "subscription.updated", "subscription.cancelled", "subscription.past_due":
	default:
		return paymentdomain.Operation{Kind: paymentdomain.OperationIgnore}, paymentdomain.ErrEventIgnored
	}

	var data paddleData
	if err := decodeData(event.Data, &data); err != nil {
		return paymentdomain.Operation{}, err
	}
	dataID := strings.TrimSpace(data.ID)
	if dataID == "" {
		return paymentdomain.Operation{}, paymentdomain.ErrInvalidEvent
	}
	userID, err := userIDFrom(data.CustomData)
	if err != nil {
		return paymentdomain.Operation{}, err
	}

	op := paymentdomain.Operation{UserID: userID}
	switch event.EventType {
	case "payment.succeeded", "payment.completed", "transaction.completed":
		op.Kind = paymentdomain.OperationCredit
		op.Type = ledgerdomain.TransactionPurchase
		op.ExternalRef = dataID
		op.Description = "Paddle payment: " + dataID
		priceCredits(&op, data, catalog)

	case "payment.failed":
		op.Kind = paymentdomain.OperationRecord
		op.Type = ledgerdomain.TransactionPaymentFailed
		op.ExternalRef = "payment_failed:" + dataID
		op.Description = "Paddle payment failed"

	case "subscription.activated":
		subscriptionID := firstNonEmpty(data.SubscriptionID, dataID)
		op.Kind = paymentdomain.OperationCredit
		op.Type = ledgerdomain.TransactionSubscriptionActivated
		op.ExternalRef = firstNonEmpty(data.TransactionID, dataID)
		op.Description = "Subscription activated: " + op.ExternalRef
		op.Subscription = &ledgerdomain.SubscriptionChange{SubscriptionID: &subscriptionID, Active: true}
		priceCredits(&op, data, catalog)

	case "subscription.updated":
		subscriptionID := firstNonEmpty(data.SubscriptionID, dataID)
		op.Kind = paymentdomain.OperationCredit
		op.Type = ledgerdomain.TransactionSubscriptionRenewed
		if start := periodStart(data); start != "" {
			op.ExternalRef = subscriptionID + ":" + start
		} else {
			op.ExternalRef = "event:" + event.ProviderEventID
		}
		op.Description = "Subscription renewed: " + subscriptionID
		op.Subscription = &ledgerdomain.SubscriptionChange{SubscriptionID: &subscriptionID, Active: true}
		priceCredits(&op, data, catalog)

	case "subscription.cancelled":
		subscriptionID := firstNonEmpty(data.SubscriptionID, dataID)
		op.Kind = paymentdomain.OperationRecord
		op.Type = ledgerdomain.TransactionSubscriptionCancelled
		op.ExternalRef = "subscription_cancelled:" + dataID
		op.Description = "Subscription cancelled: " + subscriptionID
		op.Subscription = &ledgerdomain.SubscriptionChange{Active: false}

	case "subscription.past_due":
		op.Kind = paymentdomain.OperationRecord
		op.Type = ledgerdomain.TransactionSubscriptionPaymentFailed
		op.ExternalRef = "subscription_payment_failed:" + dataID
		if start := periodStart(data); start != "" {
			op.ExternalRef += ":" + start
		}
		op.Description = "Subscription payment failed"
	}
	return op, nil
}

func priceCredits(op *paymentdomain.Operation, data paddleData, catalog config.PricingCatalog) {
	if len(data.Items) == 0 {
		return
	}
	item := data.Items[0]
	priceID := strings.TrimSpace(item.PriceID)
	if priceID == "" && item.Price != nil {
		priceID = strings.TrimSpace(item.Price.ID)
	}
	op.PriceID = priceID
	if credits, ok := catalog.CreditsForPrice(priceID); ok {
		op.Amount = credits
		op.PriceKnown = true
		return
	}
	if item.Price != nil && item.Price.Gross.IsPositive() {
		op.Gross = item.Price.Gross
	} else if data.Details != nil {
		op.Gross = data.Details.Totals.GrandTotal
	}
}

func periodStart(data paddleData) string {
	if data.CurrentBillingPeriod == nil {
		return ""
	}
	return strings.TrimSpace(data.CurrentBillingPeriod.StartsAt)
}

func decodeData(raw json.RawMessage, out *paddleData) error {
	if len(raw) == 0 {
		return paymentdomain.ErrInvalidPayload
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

func userIDFrom(customData map[string]any) (snowflake.ID, error) {
	raw := readValue(customData, "userId")
	if raw == "" {
		raw = readValue(customData, "user_id")
	}
	if raw == "" {
		return 0, paymentdomain.ErrInvalidUser
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, paymentdomain.ErrInvalidUser
	}
	return id, nil
}

func readValue(values map[string]any, key string) string {
	if values == nil {
		return ""
	}
	value, ok := values[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case json.Number:
		return cast.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
