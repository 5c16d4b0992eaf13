package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransactionType string

const (
	TransactionPurchase                  TransactionType = "purchase"
	TransactionUsage                     TransactionType = "usage"
	TransactionRefund                    TransactionType = "refund"
	TransactionSubscriptionActivated     TransactionType = "subscription_activated"
	TransactionSubscriptionRenewed       TransactionType = "subscription_renewed"
	TransactionSubscriptionCancelled     TransactionType = "subscription_cancelled"
	TransactionPaymentFailed             TransactionType = "payment_failed"
	TransactionSubscriptionPaymentFailed TransactionType = "subscription_payment_failed"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionPurchase,
		TransactionUsage,
		TransactionRefund,
		TransactionSubscriptionActivated,
		TransactionSubscriptionRenewed,
		TransactionSubscriptionCancelled,
		TransactionPaymentFailed,
		TransactionSubscriptionPaymentFailed:
		return true
	default:
		return false
	}
}

// Transaction is an append-only ledger row. Positive amounts credit the
// user, negative amounts debit, zero marks an informational record.
type Transaction struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey;autoIncrement:false"`
	UserID      snowflake.ID    `json:"user_id" gorm:"not null;index:idx_credit_transactions_user_created,priority:1"`
	Amount      int64           `json:"amount" gorm:"not null"`
	Type        TransactionType `json:"type" gorm:"type:varchar(64);not null"`
	ExternalRef *string         `json:"external_ref,omitempty" gorm:"type:varchar(191);uniqueIndex:ux_credit_transactions_external_ref"`
	JobID       *snowflake.ID   `json:"job_id,omitempty" gorm:"index"`
	Description string          `json:"description" gorm:"type:text;not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null;index:idx_credit_transactions_user_created,priority:2"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "credit_transactions" }

// SubscriptionChange is applied to the user row together with a credit.
type SubscriptionChange struct {
	SubscriptionID *string
	Active         bool
}

type DebitRequest struct {
	UserID      snowflake.ID
	Amount      int64
	JobID       snowflake.ID
	Description string
}

type DebitResult struct {
	Transaction *Transaction
	NewBalance  int64
}

type CreditRequest struct {
	UserID       snowflake.ID
	Amount       int64
	Type         TransactionType
	ExternalRef  string
	Description  string
	Subscription *SubscriptionChange
}

type CreditResult struct {
	Transaction *Transaction
	NewBalance  int64
	// Duplicate reports that ExternalRef was already applied and nothing changed.
	Duplicate bool
}

type Balance struct {
	UserID             snowflake.ID `json:"user_id"`
	Credits            int64        `json:"credits"`
	SubscriptionActive bool         `json:"subscription_active"`
}

// Reconciliation reports drift between users.credits and the ledger. Drift is
// zero unless a balance was changed outside the ledger.
type Reconciliation struct {
	Balance   Balance
	LedgerSum int64
	Drift     int64
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)
