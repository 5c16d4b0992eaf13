package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound        = errors.New("ledger_user_not_found")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidType         = errors.New("invalid_transaction_type")
	ErrInvalidExternalRef  = errors.New("invalid_external_ref")
	ErrInvalidJob          = errors.New("invalid_job")
)

// InsufficientCreditsError carries what the caller needs to remediate.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}

func (e *InsufficientCreditsError) Shortfall() int64 {
	if e.Required <= e.Available {
		return 0
	}
	return e.Required - e.Available
}
