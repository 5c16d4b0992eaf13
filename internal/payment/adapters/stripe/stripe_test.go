package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/pearlsonic/internal/payment/domain"
)

func newTestAdapter(t *testing.T, now time.Time, catalog config.PricingCatalog) *Adapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		Secret:  "whsec_test",
		Catalog: catalog,
		Clock:   clock.NewFakeClock(now),
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter.(*Adapter)
}

func TestVerifySignature(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	adapter := newTestAdapter(t, now, config.PricingCatalog{})
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)

	reqHeader := http.Header{}
	reqHeader.Set(SignatureHeader, Sign(payload, "whsec_test", now))
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set(SignatureHeader, Sign(payload, "wrong", now))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	reqHeader.Set(SignatureHeader, Sign(payload, "whsec_test", now.Add(-6*time.Minute)))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrSignatureExpired) {
		t.Fatalf("expected expired signature error, got %v", err)
	}

	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrMissingSignature) {
		t.Fatalf("expected missing signature error, got %v", err)
	}
}

func TestClassifyCheckoutSession(t *testing.T) {
	now := time.Unix(1_760_000_000, 0)
	catalog := config.PricingCatalog{Plans: []config.Plan{{ID: "price_studio", Key: "studio", Credits: 10, Price: "59.99"}}}
	adapter := newTestAdapter(t, now, catalog)

	tests := []struct {
		name       string
		payload    string
		amount     int64
		priceKnown bool
	}{
		{
			name:       "explicit credits",
			payload:    `{"id":"evt_1","type":"checkout.session.completed","created":1760000000,"data":{"object":{"id":"cs_1","amount_total":999,"metadata":{"userId":"777","credits":"5"}}}}`,
			amount:     5,
			priceKnown: true,
		},
		{
			name:       "catalog price",
			payload:    `{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_2","metadata":{"userId":"777","priceId":"price_studio"}}}}`,
			amount:     10,
			priceKnown: true,
		},
		{
			name:    "unknown price",
			payload: `{"id":"evt_3","type":"checkout.session.completed","data":{"object":{"id":"cs_3","amount_total":1200,"metadata":{"userId":"777"}}}}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event, err := adapter.Parse(context.Background(), []byte(tc.payload))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			op, err := adapter.Classify(context.Background(), event)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if op.Kind != paymentdomain.OperationCredit || op.Type != ledgerdomain.TransactionPurchase {
				t.Fatalf("unexpected operation: %+v", op)
			}
			if op.Amount != tc.amount || op.PriceKnown != tc.priceKnown {
				t.Fatalf("expected amount=%d known=%v, got %d %v", tc.amount, tc.priceKnown, op.Amount, op.PriceKnown)
			}
			if op.UserID.String() != "777" {
				t.Fatalf("unexpected user %s", op.UserID)
			}
		})
	}
}

func TestClassifyIgnoresOtherEvents(t *testing.T) {
	adapter := newTestAdapter(t, time.Unix(1_760_000_000, 0), config.PricingCatalog{})
	event, err := adapter.Parse(context.Background(), []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := adapter.Classify(context.Background(), event); !errors.Is(err, paymentdomain.ErrEventIgnored) {
		t.Fatalf("expected ignored, got %v", err)
	}

	event, err = adapter.Parse(context.Background(), []byte(`{"id":"evt_2","type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{}}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := adapter.Classify(context.Background(), event); !errors.Is(err, paymentdomain.ErrInvalidUser) {
		t.Fatalf("expected invalid user, got %v", err)
	}
}
