package fulfillment

import (
	"context"
	"fmt"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/mq"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/tool"
	"github.com/fatflowers/scentbox/pkg/types"
)

// SelectNextDelivery stores the subscriber's own picks for the upcoming cycle,
// replacing any earlier picks. An empty list clears them. The scan ships custom
// picks instead of auto-selecting.
func (e *Engine) SelectNextDelivery(ctx context.Context, userID, subscriptionID string, productRefs []string) ([]*models.SubscriptionDelivery, error) {
	sub, err := e.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrSubscriptionNotFound
	}
	if !sub.Active() {
		return nil, ErrSubscriptionNotActive
	}
	if len(productRefs) > sub.Plan().Items() {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyProducts, len(productRefs), sub.Plan().Items())
	}

	now := e.now()
	key := e.cycleKey(sub, now)
	shipAt := now.Add(e.scanOffset)
	if sub.NextDeliveryDate != nil && sub.NextDeliveryDate.After(shipAt) {
		shipAt = *sub.NextDeliveryDate
	}

	seen := types.NewIDSet()
	deliveries := make([]*models.SubscriptionDelivery, 0, len(productRefs))
	for _, ref := range productRefs {
		p, err := e.catalog.ResolveProduct(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve product %s: %w", ref, err)
		}
		if seen.Has(p.ID) {
			continue
		}
		seen.Add(p.ID)
		productID := p.ID
		deliveries = append(deliveries, &models.SubscriptionDelivery{
			ID:             tool.GenerateUUIDV7(),
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			ProductID:      &productID,
			ProductName:    p.Name,
			Status:         types.DeliveryStatusProcessing,
			ShippingDate:   shipAt,
			CustomSelected: true,
			CycleKey:       key,
			Slot:           len(deliveries),
			Trigger:        types.DeliveryTriggerCustom,
		})
	}

	if err := e.repo.ReplaceCustomSelection(ctx, sub.ID, key, deliveries); err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, e.log).Infow("custom selection stored",
		"subscription_id", sub.ID, "cycle_key", key, "products", len(deliveries))
	return deliveries, nil
}

// UpdateDeliveryStatus advances a delivery one step: PROCESSING -> SHIPPED -> DELIVERED.
func (e *Engine) UpdateDeliveryStatus(ctx context.Context, deliveryID string, status types.DeliveryStatus) (*models.SubscriptionDelivery, error) {
	d, err := e.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	from := d.Status
	if status == "" || from.Next() != status {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidDeliveryTransition, from, status)
	}

	now := e.now()
	d.Status = status
	if err := e.repo.UpdateDeliveryStatus(ctx, d, from, now); err != nil {
		return nil, err
	}
	switch status {
	case types.DeliveryStatusShipped:
		d.ShippedAt = &now
	case types.DeliveryStatusDelivered:
		d.DeliveredAt = &now
	}

	evt := &mq.DeliveryStatusEvent{
		DeliveryID:     d.ID,
		SubscriptionID: d.SubscriptionID,
		UserID:         d.UserID,
		Status:         string(status),
		OccurredAt:     now,
	}
	if err := e.publisher.Publish(ctx, mq.RoutingKeyDeliveryStatus, evt); err != nil {
		logctx.FromCtx(ctx, e.log).Warnw("failed to publish delivery status event", "delivery_id", d.ID, "error", err)
	}
	return d, nil
}

// ScanDeliveries lists deliveries for the admin console.
func (e *Engine) ScanDeliveries(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.SubscriptionDelivery], error) {
	return e.repo.ScanDeliveries(ctx, req, "")
}

// ListUserDeliveries lists one subscriber's deliveries.
func (e *Engine) ListUserDeliveries(ctx context.Context, userID string, req *types.ScanRequest) (*types.ScanResponse[*models.SubscriptionDelivery], error) {
	if userID == "" {
		return nil, ErrSubscriptionNotFound
	}
	return e.repo.ScanDeliveries(ctx, req, userID)
}
