package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	GetBalance(ctx context.Context, userID snowflake.ID) (*Balance, error)
	ReserveAndDebit(ctx context.Context, req DebitRequest) (*DebitResult, error)
	// ReserveAndDebitTx debits inside a transaction owned by the caller.
	ReserveAndDebitTx(ctx context.Context, tx *gorm.DB, req DebitRequest) (*DebitResult, error)
	Credit(ctx context.Context, req CreditRequest) (*CreditResult, error)
	ListTransactions(ctx context.Context, userID snowflake.ID, limit int) ([]Transaction, error)
	// Reconcile compares the stored balance with the sum of the user's ledger rows.
	Reconcile(ctx context.Context, userID snowflake.ID) (*Reconciliation, error)
}

type Repository interface {
	LoadBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Balance, error)
	DecrementIfAffordable(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) (bool, error)
	Increment(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) (bool, error)
	ApplySubscription(ctx context.Context, db *gorm.DB, userID snowflake.ID, change SubscriptionChange) error
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	InsertTransactionOnce(ctx context.Context, db *gorm.DB, txn *Transaction) (bool, error)
	ListTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Transaction, error)
	SumAmounts(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
}
