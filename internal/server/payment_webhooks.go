package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pearlsonic/internal/observability/logger"
	"github.com/smallbiznis/pearlsonic/internal/payment/adapters/paddle"
	paymentdomain "github.com/smallbiznis/pearlsonic/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20

func (s *Server) HandlePaddleWebhook(c *gin.Context) {
	s.ingestWebhook(c, paddle.Provider)
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	s.ingestWebhook(c, strings.ToLower(strings.TrimSpace(c.Param("provider"))))
}

// ingestWebhook answers 200 once the delivery is authentic, whatever happens
// while applying it. Only signature and configuration problems surface.
func (s *Server) ingestWebhook(c *gin.Context, provider string) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err = s.paymentSvc.Ingest(c.Request.Context(), provider, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case paymentdomain.IsAuthError(err):
		logger.FromContext(c.Request.Context()).Warn("webhook rejected",
			zap.String("provider", provider),
			zap.String("reason", err.Error()),
		)
		AbortWithError(c, ErrUnauthorized)
	case errors.Is(err, paymentdomain.ErrProviderNotFound):
		AbortWithError(c, ErrNotFound)
	case errors.Is(err, paymentdomain.ErrMissingSecret):
		logger.FromContext(c.Request.Context()).Error("webhook secret not configured", zap.String("provider", provider))
		AbortWithError(c, ErrInternal)
	default:
		AbortWithError(c, err)
	}
}
