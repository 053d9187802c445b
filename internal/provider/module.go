package provider

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/atelier/internal/config"
)

// Module provides the provider client and webhook verifier to Fx.
var Module = fx.Provide(NewClient, NewVerifier)

// NewClient selects the provider implementation from configuration.
func NewClient(cfg config.Config, logger *zap.Logger) (Client, error) {
	switch cfg.Payment.Driver {
	case "http":
		return NewHTTPClient(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout, logger), nil
	case "sandbox":
		logger.Info("payment provider running in sandbox mode")
		return NewSandbox(logger), nil
	default:
		return nil, fmt.Errorf("unsupported payment driver: %s", cfg.Payment.Driver)
	}
}

// NewVerifier builds the webhook signature verifier.
func NewVerifier(cfg config.Config) Verifier {
	return NewHMACVerifier(cfg.Payment.WebhookSecret, cfg.Payment.WebhookTolerance)
}
