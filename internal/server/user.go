package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) History(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	jobs, err := s.generationSvc.History(c.Request.Context(), userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]jobStatusResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, newJobStatusResponse(&jobs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"tracks": items})
}

func (s *Server) Transactions(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	balance, err := s.ledgerSvc.GetBalance(ctx, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	txns, err := s.ledgerSvc.ListTransactions(ctx, userID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":      balance,
		"transactions": txns,
	})
}
