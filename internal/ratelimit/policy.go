// Package ratelimit counts requests per (class, client) window and decides
// whether a request may proceed.
package ratelimit

import (
	"strings"
	"time"

	"github.com/smallbiznis/pearlsonic/internal/config"
)

type Class string

const (
	ClassAuth     Class = "auth"
	ClassWebhook  Class = "webhook"
	ClassGenerate Class = "generate"
	ClassGeneral  Class = "general"
)

// Policy allows Max requests per Window.
type Policy struct {
	Max    int
	Window time.Duration
}

func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassAuth:     {Max: 5, Window: 15 * time.Minute},
		ClassWebhook:  {Max: 10, Window: time.Minute},
		ClassGenerate: {Max: 5, Window: time.Minute},
		ClassGeneral:  {Max: 100, Window: time.Minute},
	}
}

// PoliciesFromConfig overlays configured limits on the defaults. Non-positive
// values keep the default.
func PoliciesFromConfig(cfg config.RateLimitConfig) map[Class]Policy {
	policies := DefaultPolicies()
	overlay := func(class Class, max int, window time.Duration) {
		p := policies[class]
		if max > 0 {
			p.Max = max
		}
		if window > 0 {
			p.Window = window
		}
		policies[class] = p
	}
	overlay(ClassAuth, cfg.AuthMax, cfg.AuthWindow)
	overlay(ClassWebhook, cfg.WebhookMax, cfg.WebhookWindow)
	overlay(ClassGenerate, cfg.GenerateMax, cfg.GenerateWindow)
	overlay(ClassGeneral, cfg.GeneralMax, cfg.GeneralWindow)
	return policies
}

func normalizeClass(class Class) Class {
	return Class(strings.ToLower(strings.TrimSpace(string(class))))
}
