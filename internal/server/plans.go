package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pearlsonic/internal/config"
)

type planView struct {
	ID          string `json:"id,omitempty"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Credits     int64  `json:"credits"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Billing     string `json:"billing"`
	Description string `json:"description"`
}

// ListPlans exposes the live catalog. Plans without a configured price id
// cannot be purchased and are hidden.
func (s *Server) ListPlans(c *gin.Context) {
	catalog := config.DefaultPricingCatalog()
	if s.pricing != nil {
		catalog = s.pricing.Get()
	}

	oneTime := make([]planView, 0, len(catalog.Plans))
	monthly := make([]planView, 0, len(catalog.Plans))
	for _, plan := range catalog.Plans {
		if plan.ID == "" {
			continue
		}
		view := planView{
			ID:          plan.ID,
			Key:         plan.Key,
			Name:        plan.Name,
			Credits:     plan.Credits,
			Price:       plan.Price,
			Currency:    plan.Currency,
			Billing:     plan.Billing,
			Description: plan.Description,
		}
		if plan.Billing == config.BillingMonthly {
			monthly = append(monthly, view)
		} else {
			oneTime = append(oneTime, view)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"one_time": oneTime,
		"monthly":  monthly,
	})
}
