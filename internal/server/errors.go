package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/pearlsonic/internal/auth/domain"
	generationdomain "github.com/smallbiznis/pearlsonic/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/pearlsonic/internal/payment/domain"
	musicdomain "github.com/smallbiznis/pearlsonic/internal/providers/music/domain"
	"github.com/smallbiznis/pearlsonic/internal/ratelimit"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Errors     []ValidationError `json:"errors,omitempty"`
	Required   *int64            `json:"required,omitempty"`
	Available  *int64            `json:"available,omitempty"`
	Shortfall  *int64            `json:"shortfall,omitempty"`
	RetryAfter int               `json:"retry_after,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInternal           = errors.New("internal_error")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErr *musicdomain.ValidationError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: fieldErr.Field, Code: "invalid_" + fieldErr.Field, Message: fieldErr.Reason},
			},
		}
	}

	var creditsErr *ledgerdomain.InsufficientCreditsError
	if errors.As(err, &creditsErr) {
		required, available, shortfall := creditsErr.Required, creditsErr.Available, creditsErr.Shortfall()
		return http.StatusPaymentRequired, errorPayload{
			Type:      "insufficient_credits",
			Message:   "not enough credits",
			Required:  &required,
			Available: &available,
			Shortfall: &shortfall,
		}
	}

	var limitErr *ratelimit.LimitExceededError
	if errors.As(err, &limitErr) {
		return http.StatusTooManyRequests, errorPayload{
			Type:       "rate_limited",
			Message:    "too many requests, please try again later",
			RetryAfter: limitErr.RetryAfter,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidToken),
		paymentdomain.IsAuthError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authdomain.ErrUserExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "user already exists",
		}
	case errors.Is(err, generationdomain.ErrJobNotReady):
		return http.StatusBadRequest, errorPayload{
			Type:    "not_ready",
			Message: "track is not available for download yet",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, musicdomain.ErrProviderUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_unavailable",
			Message: "music provider is unavailable",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, musicdomain.ErrUnknownProvider):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same vocabulary clients see.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return "server", code
	}
	return "client", code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, authdomain.ErrUserNotFound),
		errors.Is(err, ledgerdomain.ErrUserNotFound),
		errors.Is(err, generationdomain.ErrJobNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request", true
	case errors.Is(err, authdomain.ErrInvalidEmail):
		return "invalid_email", true
	case errors.Is(err, authdomain.ErrInvalidPassword):
		return "invalid_password", true
	case errors.Is(err, generationdomain.ErrInvalidJobID):
		return "invalid_job_id", true
	default:
		return "", false
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_job_id":
		return "id"
	default:
		return code[len("invalid_"):]
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_email":
		return "email address is not valid"
	case "invalid_password":
		return "password must be at least 6 characters"
	default:
		return "invalid value"
	}
}
