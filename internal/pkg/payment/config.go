package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ContestHub/internal/pkg/env"
)

// Config holds the payment processor configuration
type Config struct {
	SecretKey  string
	SiteDomain string
	Currency   string
	APIBaseURL string // optional override, used against stripe-mock

	// WebhookSecret enables the signed webhook endpoint when set.
	WebhookSecret string
}

// LoadConfig loads payment configuration from environment variables.
// PAYMENT_KEY is accepted for deployments configured before STRIPE_SECRET_KEY.
func LoadConfig() (*Config, error) {
	secret := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	if secret == "" {
		secret = strings.TrimSpace(env.GetEnv("PAYMENT_KEY", ""))
	}
	cfg := &Config{
		SecretKey:  secret,
		SiteDomain: strings.TrimRight(strings.TrimSpace(env.GetEnv("SITE_DOMAIN", "")), "/"),
		Currency:   strings.ToLower(strings.TrimSpace(env.GetEnv("PAYMENT_CURRENCY", "usd"))),
		APIBaseURL: strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", "")),

		WebhookSecret: strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.SiteDomain == "" {
		return nil, errors.New("SITE_DOMAIN is required for checkout redirect URLs")
	}
	return cfg, nil
}

// SuccessURL is where the processor redirects after payment. The processor
// substitutes {CHECKOUT_SESSION_ID}.
func (c *Config) SuccessURL(contestID uint) string {
	return fmt.Sprintf("%s/payment-success/%d?session_id={CHECKOUT_SESSION_ID}", c.SiteDomain, contestID)
}

// CancelURL is where the processor redirects when checkout is abandoned.
func (c *Config) CancelURL(contestID uint) string {
	return fmt.Sprintf("%s/payment-cancel/%d", c.SiteDomain, contestID)
}
