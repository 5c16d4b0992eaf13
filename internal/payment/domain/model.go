package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	"gorm.io/datatypes"
)

// EventRecord is the stored copy of every verified webhook delivery.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Provider        string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(191);not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:varchar(64);not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	ProcessingError string         `json:"processing_error" gorm:"type:text;not null;default:''"`
}

func (EventRecord) TableName() string { return "payment_events" }

// PaymentEvent is the verified envelope of a provider notification.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	OccurredAt      time.Time
	Data            json.RawMessage
	RawPayload      []byte
}

type OperationKind string

const (
	// OperationCredit adds credits to the user.
	OperationCredit OperationKind = "credit"
	// OperationRecord writes a zero-amount ledger row and may change
	// subscription state.
	OperationRecord OperationKind = "record"
	OperationIgnore OperationKind = "ignore"
)

// Operation is the ledger effect of one event.
type Operation struct {
	Kind         OperationKind
	Type         ledgerdomain.TransactionType
	Amount       int64
	ExternalRef  string
	UserID       snowflake.ID
	Subscription *ledgerdomain.SubscriptionChange
	Description  string

	// PriceID and PriceKnown describe how Amount was derived. When the
	// price is unknown, Gross carries the charged amount in minor units.
	PriceID    string
	PriceKnown bool
	Gross      decimal.Decimal
}

const DefaultSignatureTolerance = 300 * time.Second
