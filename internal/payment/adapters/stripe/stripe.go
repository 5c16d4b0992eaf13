package stripe

import (
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
	Provider        = "stripe"
	SignatureHeader = "Stripe-Signature"
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
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrMissingSignature
	}

	timestamp, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrMissingSignature
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	skew := a.clock.Now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > a.tolerance {
		return paymentdomain.ErrSignatureExpired
	}

	expected := sign(a.webhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func sign(secret, timestamp string, payload []byte) string {
	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign builds a Stripe-Signature header value for payload.
func Sign(payload []byte, secret string, ts time.Time) string {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, sign(secret, timestamp, payload))
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string         `json:"id"`
	PaymentIntent string         `json:"payment_intent"`
	AmountTotal   int64          `json:"amount_total"`
	Currency      string         `json:"currency"`
	Metadata      map[string]any `json:"metadata"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.PaymentEvent{
		Provider:        Provider,
		ProviderEventID: strings.TrimSpace(event.ID),
		EventType:       strings.TrimSpace(event.Type),
		OccurredAt:      timestamp(event.Created, a.clock),
		Data:            event.Data.Object,
		RawPayload:      payload,
	}, nil
}

// Classify credits completed checkout sessions. The session carries the
// buyer and the purchased credits in its metadata.
func (a *Adapter) Classify(ctx context.Context, event *paymentdomain.PaymentEvent) (paymentdomain.Operation, error) {
	if event == nil {
		return paymentdomain.Operation{}, paymentdomain.ErrInvalidEvent
	}
	if event.EventType != "checkout.session.completed" {
		return paymentdomain.Operation{Kind: paymentdomain.OperationIgnore}, paymentdomain.ErrEventIgnored
	}

	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data, &session); err != nil {
		return paymentdomain.Operation{}, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return paymentdomain.Operation{}, paymentdomain.ErrInvalidEvent
	}

	userRaw := readMetadataValue(session.Metadata, "userId")
	if userRaw == "" {
		userRaw = readMetadataValue(session.Metadata, "user_id")
	}
	userID, err := snowflake.ParseString(userRaw)
	if err != nil || userID <= 0 {
		return paymentdomain.Operation{}, paymentdomain.ErrInvalidUser
	}

	op := paymentdomain.Operation{
		Kind:        paymentdomain.OperationCredit,
		Type:        ledgerdomain.TransactionPurchase,
		ExternalRef: strings.TrimSpace(session.ID),
		UserID:      userID,
		PriceID:     readMetadataValue(session.Metadata, "priceId"),
	}

	if credits, err := strconv.ParseInt(readMetadataValue(session.Metadata, "credits"), 10, 64); err == nil && credits > 0 {
		op.Amount = credits
		op.PriceKnown = true
	} else if credits, ok := a.catalog.CreditsForPrice(op.PriceID); ok {
		op.Amount = credits
		op.PriceKnown = true
	} else {
		op.Gross = decimal.NewFromInt(session.AmountTotal)
	}
	op.Description = fmt.Sprintf("Stripe checkout: %d credits", op.Amount)
	return op, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
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
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrMissingSignature
	}
	return timestamp, signatures, nil
}

func timestamp(created int64, clk clock.Clock) time.Time {
	if created == 0 {
		return clk.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
