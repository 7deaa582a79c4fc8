package payment

import (
	"fmt"
	"log/slog"

	"github.com/boilerkit/boilerkit/internal/config"
	"github.com/boilerkit/boilerkit/internal/service"
)

// NewProvider creates a payment provider based on configuration
func NewProvider(cfg *config.Config, subscriptionService *service.SubscriptionService) (Provider, error) {
	slog.Info("initializing payment provider", "provider", "stripe")

	if cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}

	return NewStripeProvider(cfg, subscriptionService), nil
}
