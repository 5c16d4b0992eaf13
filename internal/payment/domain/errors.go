package domain

import "errors"

var (
	ErrMissingSignature = errors.New("missing_signature")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrSignatureExpired = errors.New("signature_expired")
	ErrMissingSecret    = errors.New("webhook_secret_not_configured")
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidUser      = errors.New("invalid_user_reference")
	ErrUnknownPrice     = errors.New("unknown_price")
	ErrEventIgnored     = errors.New("event_ignored")
)

// IsAuthError reports whether err means the delivery could not be authenticated.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrSignatureExpired)
}
