package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	Authenticate(ctx context.Context, rawToken string) (snowflake.ID, error)
	CurrentUser(ctx context.Context, userID snowflake.ID) (*User, error)
}

type RegisterRequest struct {
	Email    string
	Password string
}

type LoginRequest struct {
	Email    string
	Password string
}

type AuthResult struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}
