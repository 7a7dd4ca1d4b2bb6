package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeClient implements Client on top of the Stripe subscriptions API.
type StripeClient struct {
	api *client.API
	log *zap.SugaredLogger
}

// NewStripeClient builds a client. A nil backends uses the Stripe defaults.
func NewStripeClient(secretKey string, log *zap.SugaredLogger, backends *stripe.Backends) *StripeClient {
	if backends == nil {
		backends = stripe.NewBackendsWithConfig(&stripe.BackendConfig{
			LeveledLogger:     log,
			MaxNetworkRetries: stripe.Int64(2),
		})
	}
	return &StripeClient{api: client.New(secretKey, backends), log: log}
}

func (c *StripeClient) PauseSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String(string(stripe.SubscriptionPauseCollectionBehaviorVoid)),
		},
	}
	params.Context = ctx
	_, err := c.api.Subscriptions.Update(id, params)
	return mapError("pause", id, err)
}

func (c *StripeClient) ResumeSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// an empty value clears pause_collection
	params.AddExtra("pause_collection", "")
	_, err := c.api.Subscriptions.Update(id, params)
	return mapError("resume", id, err)
}

func (c *StripeClient) CancelSubscription(ctx context.Context, id string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := c.api.Subscriptions.Cancel(id, params)
	return mapError("cancel", id, err)
}

func (c *StripeClient) ChangeSubscriptionPrice(ctx context.Context, id, priceID string) error {
	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, getParams)
	if err != nil {
		return mapError("get", id, err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("stripe subscription %s has no items", id)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(sub.Items.Data[0].ID),
			Price: stripe.String(priceID),
		}},
		ProrationBehavior: stripe.String("none"),
	}
	params.Context = ctx
	_, err = c.api.Subscriptions.Update(id, params)
	return mapError("change price", id, err)
}

func mapError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("failed to %s stripe subscription %s: %w", op, id, ErrResourceMissing)
	}
	return fmt.Errorf("failed to %s stripe subscription %s: %w", op, id, err)
}
