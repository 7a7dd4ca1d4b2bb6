package billing

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/fatflowers/scentbox/pkg/config"
)

var ErrInvalidSignature = errors.New("billing: invalid webhook signature")

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// WebhookVerifier authenticates raw webhook payloads before anything parses them.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(cfg *config.Config) *WebhookVerifier {
	return &WebhookVerifier{secret: cfg.Stripe.WebhookSecret}
}

// Verify checks the signature header against payload and decodes the event envelope.
func (v *WebhookVerifier) Verify(payload []byte, header string) (*stripe.Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: webhook secret is empty", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return &event, nil
}
