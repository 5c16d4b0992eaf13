package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

// Provide returns a stateless repository; every call takes the handle to run on
// so the same code works inside and outside a transaction.
func Provide() domain.Repository {
	return &repo{}
}

type balanceRow struct {
	ID                 snowflake.ID
	Credits            int64
	SubscriptionActive bool
}

func (r *repo) LoadBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Balance, error) {
	var row balanceRow
	err := db.WithContext(ctx).
		Table("users").
		Select("id", "credits", "subscription_active").
		Where("id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.Balance{
		UserID:             row.ID,
		Credits:            row.Credits,
		SubscriptionActive: row.SubscriptionActive,
	}, nil
}

// DecrementIfAffordable reports false when the row is missing or the
// balance is below amount. The check and the write are one statement.
func (r *repo) DecrementIfAffordable(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET credits = credits - ?, updated_at = ? WHERE id = ? AND credits >= ?`,
		amount,
		time.Now().UTC(),
		userID,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET credits = credits + ?, updated_at = ? WHERE id = ?`,
		amount,
		time.Now().UTC(),
		userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ApplySubscription(ctx context.Context, db *gorm.DB, userID snowflake.ID, change domain.SubscriptionChange) error {
	updates := map[string]any{
		"subscription_active": change.Active,
		"updated_at":          time.Now().UTC(),
	}
	if change.SubscriptionID != nil {
		updates["subscription_id"] = *change.SubscriptionID
	} else if !change.Active {
		updates["subscription_id"] = nil
	}
	result := db.WithContext(ctx).Table("users").Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.Transaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

// InsertTransactionOnce inserts unless external_ref already exists and
// reports whether a row was written.
func (r *repo) InsertTransactionOnce(ctx context.Context, db *gorm.DB, txn *domain.Transaction) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_ref"}},
			DoNothing: true,
		}).
		Create(txn)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.Transaction, error) {
	var items []domain.Transaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumAmounts(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}
