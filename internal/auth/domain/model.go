// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User represents an account. Credits and subscription fields are owned by
// the ledger; auth only reads them.
type User struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	Email              string       `json:"email" gorm:"type:varchar(320);not null;uniqueIndex"`
	PasswordHash       string       `json:"-" gorm:"type:text;not null"`
	Credits            int64        `json:"credits" gorm:"not null;default:0;check:credits >= 0"`
	SubscriptionID     *string      `json:"subscription_id,omitempty" gorm:"type:varchar(191)"`
	SubscriptionActive bool         `json:"subscription_active" gorm:"not null;default:false"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// UserView is the public projection returned to clients.
type UserView struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Credits            int64     `json:"credits"`
	SubscriptionActive bool      `json:"subscription_active"`
	CreatedAt          time.Time `json:"created_at"`
}

func (u *User) View() UserView {
	return UserView{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Credits:            u.Credits,
		SubscriptionActive: u.SubscriptionActive,
		CreatedAt:          u.CreatedAt,
	}
}
