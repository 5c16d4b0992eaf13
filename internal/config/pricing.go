package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	BillingOneTime = "one-time"
	BillingMonthly = "monthly"
)

// Plan maps a payment-provider price id to the credits it buys.
type Plan struct {
	ID          string `mapstructure:"id" json:"id"`
	Key         string `mapstructure:"key" json:"key"`
	Name        string `mapstructure:"name" json:"name"`
	Credits     int64  `mapstructure:"credits" json:"credits"`
	Price       string `mapstructure:"price" json:"price"`
	Currency    string `mapstructure:"currency" json:"currency"`
	Billing     string `mapstructure:"billing" json:"billing"`
	Description string `mapstructure:"description" json:"description"`
}

type PricingCatalog struct {
	Plans []Plan `mapstructure:"plans" json:"plans"`
}

// CreditsForPrice returns the credits granted by priceID.
func (c PricingCatalog) CreditsForPrice(priceID string) (int64, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return 0, false
	}
	for _, plan := range c.Plans {
		if plan.ID == priceID {
			return plan.Credits, true
		}
	}
	return 0, false
}

// PriceAmount parses the plan's display price.
func (p Plan) PriceAmount() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(p.Price))
}

func DefaultPricingCatalog() PricingCatalog {
	plan := func(key, name string, credits int64, price, billing, description string) Plan {
		envKey := "PADDLE_PRICE_" + strings.ToUpper(key)
		return Plan{
			ID:          strings.TrimSpace(os.Getenv(envKey)),
			Key:         key,
			Name:        name,
			Credits:     credits,
			Price:       price,
			Currency:    "USD",
			Billing:     billing,
			Description: description,
		}
	}
	return PricingCatalog{
		Plans: []Plan{
			plan("starter", "Starter", 1, "9.99", BillingOneTime, "1 song (2 minutes of music)"),
			plan("pro", "Pro", 3, "14.99", BillingOneTime, "3 songs (6 minutes of music)"),
			plan("creator", "Creator", 5, "24.99", BillingOneTime, "5 songs (10 minutes of music)"),
			plan("studio", "Studio", 10, "59.99", BillingOneTime, "10 songs (20 minutes of music)"),
			plan("starter_monthly", "Starter", 1, "1.99", BillingMonthly, "1 song/month (2 minutes)"),
			plan("pro_monthly", "Pro", 3, "4.99", BillingMonthly, "3 songs/month (6 minutes)"),
			plan("creator_monthly", "Creator", 5, "7.99", BillingMonthly, "5 songs/month (10 minutes)"),
			plan("studio_monthly", "Studio", 10, "16.99", BillingMonthly, "10 songs/month (20 minutes)"),
		},
	}
}

// PricingHolder serves the current catalog and swaps it on file change.
type PricingHolder struct {
	current atomic.Value // holds PricingCatalog
}

// NewStaticPricingHolder wraps a fixed catalog.
func NewStaticPricingHolder(catalog PricingCatalog) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(catalog)
	return holder
}

func NewPricingHolder(log *zap.Logger) (*PricingHolder, error) {
	log = log.Named("pricing.config")
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/pearlsonic")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PEARLSONIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fromFile = false
	}

	cfg := DefaultPricingCatalog()
	if fromFile {
		var loaded PricingCatalog
		if err := v.UnmarshalKey("pricing", &loaded); err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := validatePricingCatalog(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticPricingHolder(cfg)
	if !fromFile {
		log.Info("pricing.yml not found, using built-in plans")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingCatalog
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Warn("pricing reload failed", zap.Error(err))
			return
		}
		if err := validatePricingCatalog(updated); err != nil {
			log.Warn("invalid pricing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("pricing reloaded", zap.String("file", e.Name), zap.Int("plans", len(updated.Plans)))
	})

	return holder, nil
}

func (h *PricingHolder) Get() PricingCatalog {
	return h.current.Load().(PricingCatalog)
}

func validatePricingCatalog(cfg PricingCatalog) error {
	if len(cfg.Plans) == 0 {
		return errors.New("pricing.plans cannot be empty")
	}
	seen := map[string]struct{}{}
	for _, plan := range cfg.Plans {
		if plan.Credits <= 0 {
			return fmt.Errorf("pricing plan %q must grant positive credits", plan.Key)
		}
		if _, err := plan.PriceAmount(); err != nil {
			return fmt.Errorf("pricing plan %q has invalid price %q", plan.Key, plan.Price)
		}
		if plan.ID == "" {
			continue
		}
		if _, ok := seen[plan.ID]; ok {
			return fmt.Errorf("duplicate price id %q", plan.ID)
		}
		seen[plan.ID] = struct{}{}
	}
	return nil
}
