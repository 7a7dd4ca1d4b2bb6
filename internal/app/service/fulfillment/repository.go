package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/db"
	"github.com/fatflowers/scentbox/pkg/tool"
	"github.com/fatflowers/scentbox/pkg/types"
)

// CyclePlan is everything written when one subscription cycle is fulfilled.
type CyclePlan struct {
	SubscriptionID string
	// ExpectedDate is the next_delivery_date the plan was computed from.
	// The write is rejected when the stored date moved in between.
	ExpectedDate *time.Time
	CycleKey     string
	// CycleDate is recorded as the subscription's last cycle date.
	CycleDate        time.Time
	NextDeliveryDate time.Time
	Trigger          types.DeliveryTrigger
	// BilledAt is set on billing-triggered plans. The write is rejected when
	// the billing period around it already has a planned cycle.
	BilledAt *time.Time
	// Deliveries are inserted as-is; empty when the cycle ships nothing or
	// ships the subscriber's custom picks already stored for the cycle.
	Deliveries []*models.SubscriptionDelivery
}

var deliveryScanFields = []string{
	"id", "subscription_id", "user_id", "product_id", "status", "shipping_date",
	"custom_selected", "cycle_key", "trigger", "created_at", "updated_at",
}

type Repository interface {
	// ListDueSubscriptions returns ACTIVE subscriptions whose next delivery is on or before until.
	ListDueSubscriptions(ctx context.Context, until time.Time) ([]*models.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	CycleDeliveries(ctx context.Context, subscriptionID, cycleKey string) ([]*models.SubscriptionDelivery, error)
	// ScheduleCycle writes the plan's deliveries and advances the subscription in one transaction.
	ScheduleCycle(ctx context.Context, plan *CyclePlan) (*models.Subscription, error)
	// ReplaceCustomSelection swaps the subscriber's custom picks for the given cycle.
	ReplaceCustomSelection(ctx context.Context, subscriptionID, cycleKey string, deliveries []*models.SubscriptionDelivery) error
	GetDelivery(ctx context.Context, id string) (*models.SubscriptionDelivery, error)
	// UpdateDeliveryStatus moves d to status only if it is still in from.
	UpdateDeliveryStatus(ctx context.Context, d *models.SubscriptionDelivery, from types.DeliveryStatus, at time.Time) error
	ScanDeliveries(ctx context.Context, req *types.ScanRequest, userID string) (*types.ScanResponse[*models.SubscriptionDelivery], error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListDueSubscriptions(ctx context.Context, until time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_delivery_date IS NOT NULL AND next_delivery_date <= ?", types.SubscriptionStatusActive, until).
		Order("next_delivery_date ASC, id ASC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	return subs, nil
}

func (r *gormRepository) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return r.firstSubscription(ctx, "id = ?", id)
}

func (r *gormRepository) GetSubscriptionByProviderID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return r.firstSubscription(ctx, "provider_subscription_id = ?", providerSubscriptionID)
}

func (r *gormRepository) firstSubscription(ctx context.Context, query string, arg string) (*models.Subscription, error) {
	if arg == "" {
		return nil, ErrSubscriptionNotFound
	}
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where(query, arg).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (r *gormRepository) CycleDeliveries(ctx context.Context, subscriptionID, cycleKey string) ([]*models.SubscriptionDelivery, error) {
	return cycleDeliveries(ctx, r.db, subscriptionID, cycleKey)
}

func cycleDeliveries(ctx context.Context, tx *gorm.DB, subscriptionID, cycleKey string) ([]*models.SubscriptionDelivery, error) {
	var rows []*models.SubscriptionDelivery
	err := tx.WithContext(ctx).
		Where("subscription_id = ? AND cycle_key = ?", subscriptionID, cycleKey).
		Order("slot ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle deliveries: %w", err)
	}
	return rows, nil
}

// lockSubscription reads the subscription row with FOR UPDATE inside tx.
func lockSubscription(ctx context.Context, tx *gorm.DB, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}
	return &sub, nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (r *gormRepository) ScheduleCycle(ctx context.Context, plan *CyclePlan) (*models.Subscription, error) {
	var updated *models.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscription(ctx, tx, plan.SubscriptionID)
		if err != nil {
			return err
		}
		if !sub.Active() {
			return ErrSubscriptionNotActive
		}
		if plan.BilledAt != nil && sub.PeriodPlanned(*plan.BilledAt) {
			return errPeriodPlanned
		}
		if !sameDate(sub.NextDeliveryDate, plan.ExpectedDate) {
			return ErrCycleAlreadyScheduled
		}

		existing, err := cycleDeliveries(ctx, tx, sub.ID, plan.CycleKey)
		if err != nil {
			return err
		}
		for _, d := range existing {
			// auto deliveries mean the cycle was planned; custom picks only conflict with new rows
			if !d.CustomSelected || len(plan.Deliveries) > 0 {
				return ErrCycleAlreadyScheduled
			}
		}

		if len(plan.Deliveries) > 0 {
			if err := tx.Create(plan.Deliveries).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrCycleAlreadyScheduled
				}
				return fmt.Errorf("failed to create deliveries: %w", err)
			}
		}

		before := *sub
		next, cycleDate := plan.NextDeliveryDate, plan.CycleDate
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).
			Updates(map[string]any{
				"next_delivery_date": next,
				"last_cycle_date":    cycleDate,
			}).Error; err != nil {
			return fmt.Errorf("failed to advance next delivery date: %w", err)
		}
		sub.NextDeliveryDate = &next
		sub.LastCycleDate = &cycleDate

		if err := tx.Create(&models.SubscriptionLog{
			ID:             tool.GenerateUUIDV7(),
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			Reason:         types.SubscriptionChangeReasonDeliveryCycle,
			Before:         datatypes.NewJSONType(&before),
			After:          datatypes.NewJSONType(sub),
			Extra: datatypes.JSONMap{
				"cycle_key":  plan.CycleKey,
				"trigger":    string(plan.Trigger),
				"deliveries": len(plan.Deliveries),
			},
		}).Error; err != nil {
			return fmt.Errorf("failed to create subscription log: %w", err)
		}
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *gormRepository) ReplaceCustomSelection(ctx context.Context, subscriptionID, cycleKey string, deliveries []*models.SubscriptionDelivery) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscription(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if !sub.Active() {
			return ErrSubscriptionNotActive
		}
		if sub.NextDeliveryDate != nil && sub.CycleKey() != cycleKey {
			return ErrCycleAlreadyScheduled
		}

		existing, err := cycleDeliveries(ctx, tx, subscriptionID, cycleKey)
		if err != nil {
			return err
		}
		for _, d := range existing {
			if !d.CustomSelected || d.Status != types.DeliveryStatusProcessing {
				return ErrCycleAlreadyScheduled
			}
		}

		if err := tx.Where("subscription_id = ? AND cycle_key = ? AND custom_selected = ?", subscriptionID, cycleKey, true).
			Delete(&models.SubscriptionDelivery{}).Error; err != nil {
			return fmt.Errorf("failed to delete previous picks: %w", err)
		}
		if len(deliveries) == 0 {
			return nil
		}
		if err := tx.Create(deliveries).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrCycleAlreadyScheduled
			}
			return fmt.Errorf("failed to create custom picks: %w", err)
		}
		return nil
	})
}

func (r *gormRepository) GetDelivery(ctx context.Context, id string) (*models.SubscriptionDelivery, error) {
	var d models.SubscriptionDelivery
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeliveryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load delivery: %w", err)
	}
	return &d, nil
}

func (r *gormRepository) UpdateDeliveryStatus(ctx context.Context, d *models.SubscriptionDelivery, from types.DeliveryStatus, at time.Time) error {
	updates := map[string]interface{}{"status": d.Status}
	switch d.Status {
	case types.DeliveryStatusShipped:
		updates["shipped_at"] = at
	case types.DeliveryStatusDelivered:
		updates["delivered_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.SubscriptionDelivery{}).
		Where("id = ? AND status = ?", d.ID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update delivery status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidDeliveryTransition
	}
	return nil
}

func (r *gormRepository) ScanDeliveries(ctx context.Context, req *types.ScanRequest, userID string) (*types.ScanResponse[*models.SubscriptionDelivery], error) {
	opts := []db.ScanOption{db.AllowFields(deliveryScanFields...)}
	if userID != "" {
		opts = append(opts, db.Scope(clause.Eq{Column: "user_id", Value: userID}))
	}
	return db.Scan[models.SubscriptionDelivery](ctx, r.db, req, opts...)
}
