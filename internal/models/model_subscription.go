package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fatflowers/scentbox/pkg/types"
)

// CycleKeyLayout formats the delivery date a cycle is keyed by.
const CycleKeyLayout = "2006-01-02"

// Subscription is a subscriber's recurring delivery agreement.
// The plan descriptor is copied from config at creation or plan change.
type Subscription struct {
	ID     string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string                   `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Status types.SubscriptionStatus `gorm:"column:status;type:varchar(64);not null;index:idx_status_next_delivery_date,priority:1" json:"status"`

	PlanID            string `gorm:"column:plan_id;type:varchar(64);not null" json:"plan_id"`
	BillingPeriodDays int    `gorm:"column:billing_period_days;not null;default:30" json:"billing_period_days"`
	ItemCount         int    `gorm:"column:item_count;not null;default:1" json:"item_count"`

	DeliveryPreference    types.DeliveryPreference `gorm:"column:delivery_preference;type:varchar(64);not null;default:'FROM_FAVORITES'" json:"delivery_preference"`
	PreferCustomSelection bool                     `gorm:"column:prefer_custom_selection;not null;default:false" json:"prefer_custom_selection"`
	// ProductID is the designated product shipped under DeliveryPreferenceSame.
	ProductID *string `gorm:"column:product_id;type:uuid;default:null" json:"product_id"`

	NextDeliveryDate *time.Time `gorm:"column:next_delivery_date;default:null;index:idx_status_next_delivery_date,priority:2" json:"next_delivery_date"`
	EndDate          *time.Time `gorm:"column:end_date;default:null" json:"end_date"`

	// LastCycleDate is the date of the most recently planned cycle, whichever trigger planned it.
	LastCycleDate *time.Time `gorm:"column:last_cycle_date;default:null" json:"last_cycle_date"`

	ProviderID             types.PaymentProvider `gorm:"column:provider_id;type:varchar(64);not null" json:"provider_id"`
	ProviderSubscriptionID *string               `gorm:"column:provider_subscription_id;type:varchar(128);uniqueIndex" json:"provider_subscription_id"`

	// Extra stores additional JSON data (for example: checkout session and promotion details).
	Extra     datatypes.JSON `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// Plan returns the stored plan descriptor.
func (s *Subscription) Plan() *types.Plan {
	if s == nil {
		return nil
	}
	return &types.Plan{
		ID:                s.PlanID,
		ProviderID:        s.ProviderID,
		BillingPeriodDays: s.BillingPeriodDays,
		ItemCount:         s.ItemCount,
	}
}

// ApplyPlan copies the descriptor fields of p onto the subscription.
func (s *Subscription) ApplyPlan(p *types.Plan) {
	s.PlanID = p.ID
	s.BillingPeriodDays = p.BillingPeriodDays
	s.ItemCount = p.ItemCount
}

// CycleKey identifies the delivery cycle currently due. Empty when no date is scheduled.
func (s *Subscription) CycleKey() string {
	if s == nil || s.NextDeliveryDate == nil {
		return ""
	}
	return s.NextDeliveryDate.UTC().Format(CycleKeyLayout)
}

// NextCycleDate is the date following the current cycle: one billing period after
// NextDeliveryDate, or after now when no date is set.
func (s *Subscription) NextCycleDate(now time.Time) time.Time {
	from := now
	if s.NextDeliveryDate != nil {
		from = *s.NextDeliveryDate
	}
	return from.Add(s.Plan().BillingPeriod())
}

// PeriodPlanned reports whether the billing period around at already has a planned
// cycle: the last cycle date lies within half a billing period of at.
func (s *Subscription) PeriodPlanned(at time.Time) bool {
	if s == nil || s.LastCycleDate == nil {
		return false
	}
	gap := at.Sub(*s.LastCycleDate)
	if gap < 0 {
		gap = -gap
	}
	return gap < s.Plan().BillingPeriod()/2
}

func (s *Subscription) Active() bool {
	return s != nil && s.Status == types.SubscriptionStatusActive
}
