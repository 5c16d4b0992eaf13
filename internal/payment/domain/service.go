package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/clock"
	"github.com/smallbiznis/pearlsonic/internal/config"
	"gorm.io/gorm"
)

type AdapterConfig struct {
	Secret    string
	Catalog   config.PricingCatalog
	Clock     clock.Clock
	Tolerance time.Duration
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Adapter, error)
}

// Adapter authenticates and interprets one provider's webhooks.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
	Classify(ctx context.Context, event *PaymentEvent) (Operation, error)
}

// Service ingests webhook deliveries. Only authentication and configuration
// failures are returned; everything after verification is recorded instead.
type Service interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
}
