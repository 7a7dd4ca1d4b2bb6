// Package billing wraps the payment provider's subscription API and webhook verification.
package billing

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/pkg/config"
)

var (
	// ErrResourceMissing means the provider no longer knows the subscription.
	ErrResourceMissing = errors.New("billing: resource missing")
	ErrNotConfigured   = errors.New("billing: provider is not configured")
)

// Client manages provider-side subscriptions. Callers pass the provider subscription ID.
type Client interface {
	PauseSubscription(ctx context.Context, providerSubscriptionID string) error
	ResumeSubscription(ctx context.Context, providerSubscriptionID string) error
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
	ChangeSubscriptionPrice(ctx context.Context, providerSubscriptionID, priceID string) error
}

// disabledClient is used when no secret key is configured.
type disabledClient struct{}

func (disabledClient) PauseSubscription(context.Context, string) error  { return ErrNotConfigured }
func (disabledClient) ResumeSubscription(context.Context, string) error { return ErrNotConfigured }
func (disabledClient) CancelSubscription(context.Context, string) error { return ErrNotConfigured }
func (disabledClient) ChangeSubscriptionPrice(context.Context, string, string) error {
	return ErrNotConfigured
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) Client {
	if cfg.Stripe.SecretKey == "" {
		log.Warnw("stripe secret key is empty; billing calls are disabled")
		return disabledClient{}
	}
	return NewStripeClient(cfg.Stripe.SecretKey, log, nil)
}

var Module = fx.Options(
	fx.Provide(
		NewClient,
		NewWebhookVerifier,
	),
)
