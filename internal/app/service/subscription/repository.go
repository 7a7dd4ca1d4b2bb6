package subscription

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/db"
	"github.com/fatflowers/scentbox/pkg/tool"
	"github.com/fatflowers/scentbox/pkg/types"
)

// Change is one audited mutation of a subscription.
type Change struct {
	Before *models.Subscription
	After  *models.Subscription
	Reason types.SubscriptionChangeReason
	Extra  datatypes.JSONMap
}

var subscriptionScanFields = []string{
	"id", "user_id", "status", "plan_id", "delivery_preference", "prefer_custom_selection",
	"next_delivery_date", "end_date", "provider_id", "provider_subscription_id", "created_at", "updated_at",
}

// mutableColumns are the columns a Change may write.
var mutableColumns = []string{
	"status", "plan_id", "billing_period_days", "item_count", "delivery_preference",
	"prefer_custom_selection", "product_id", "next_delivery_date", "end_date", "updated_at",
}

type Repository interface {
	Get(ctx context.Context, id string) (*models.Subscription, error)
	GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	// Create inserts sub unless its provider subscription already exists, in which case the stored row is returned.
	Create(ctx context.Context, sub *models.Subscription, extra datatypes.JSONMap) (*models.Subscription, bool, error)
	// Apply writes c.After if the stored status still equals c.Before.Status and logs the change.
	Apply(ctx context.Context, c *Change) error
	Scan(ctx context.Context, req *types.ScanRequest, userID string) (*types.ScanResponse[*models.Subscription], error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) first(ctx context.Context, tx *gorm.DB, query string, arg string) (*models.Subscription, error) {
	if arg == "" {
		return nil, ErrNotFound
	}
	var sub models.Subscription
	err := tx.WithContext(ctx).Where(query, arg).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (r *gormRepository) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return r.first(ctx, r.db, "id = ?", id)
}

func (r *gormRepository) GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	return r.first(ctx, r.db, "provider_subscription_id = ?", providerSubscriptionID)
}

func newLog(c *Change) *models.SubscriptionLog {
	extra := c.Extra
	if extra == nil {
		extra = datatypes.JSONMap{}
	}
	return &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		UserID:         c.After.UserID,
		SubscriptionID: c.After.ID,
		Reason:         c.Reason,
		Before:         datatypes.NewJSONType(c.Before),
		After:          datatypes.NewJSONType(c.After),
		Extra:          extra,
	}
}

func (r *gormRepository) Create(ctx context.Context, sub *models.Subscription, extra datatypes.JSONMap) (*models.Subscription, bool, error) {
	var stored *models.Subscription
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if sub.ProviderSubscriptionID != nil {
			existing, err := r.first(ctx, tx, "provider_subscription_id = ?", *sub.ProviderSubscriptionID)
			if err == nil {
				stored = existing
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		if sub.ID == "" {
			sub.ID = tool.GenerateUUIDV7()
		}
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		if err := tx.Create(newLog(&Change{After: sub, Reason: types.SubscriptionChangeReasonCreate, Extra: extra})).Error; err != nil {
			return fmt.Errorf("failed to create subscription log: %w", err)
		}
		stored = sub
		created = true
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) && sub.ProviderSubscriptionID != nil {
		// lost the race against a concurrent delivery of the same event
		existing, getErr := r.GetByProviderSubscriptionID(ctx, *sub.ProviderSubscriptionID)
		return existing, false, getErr
	}
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *gormRepository) Apply(ctx context.Context, c *Change) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", c.After.ID).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock subscription: %w", err)
		}
		if c.Before != nil && current.Status != c.Before.Status {
			return fmt.Errorf("%w: status changed to %s", ErrInvalidTransition, current.Status)
		}
		if err := tx.Model(c.After).Select(mutableColumns).Updates(c.After).Error; err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
		if err := tx.Create(newLog(c)).Error; err != nil {
			return fmt.Errorf("failed to create subscription log: %w", err)
		}
		return nil
	})
}

func (r *gormRepository) Scan(ctx context.Context, req *types.ScanRequest, userID string) (*types.ScanResponse[*models.Subscription], error) {
	opts := []db.ScanOption{db.AllowFields(subscriptionScanFields...)}
	if userID != "" {
		opts = append(opts, db.Scope(clause.Eq{Column: "user_id", Value: userID}))
	}
	return db.Scan[models.Subscription](ctx, r.db, req, opts...)
}
