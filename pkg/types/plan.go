package types

import "time"

type PaymentProvider string

const (
	PaymentProviderStripe PaymentProvider = "stripe"
	PaymentProviderInner  PaymentProvider = "inner"
)

// Plan describes a recurring delivery plan offered to subscribers.
// Plans are configured under `plans` and copied onto each subscription.
type Plan struct {
	ID              string          `json:"id" mapstructure:"id"`
	Name            string          `json:"name" mapstructure:"name"`
	ProviderID      PaymentProvider `json:"provider_id" mapstructure:"provider_id"`
	ProviderPriceID string          `json:"provider_price_id" mapstructure:"provider_price_id"`
	// BillingPeriodDays is the distance between two deliveries; 0 means DefaultBillingPeriodDays.
	BillingPeriodDays int `json:"billing_period_days" mapstructure:"billing_period_days"`
	// ItemCount is the number of products shipped per cycle; 0 means one item.
	ItemCount int `json:"item_count" mapstructure:"item_count"`
}

const DefaultBillingPeriodDays = 30

// BillingPeriod returns the plan period, falling back to DefaultBillingPeriodDays.
func (p *Plan) BillingPeriod() time.Duration {
	days := DefaultBillingPeriodDays
	if p != nil && p.BillingPeriodDays > 0 {
		days = p.BillingPeriodDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Items returns how many products a cycle ships. An unset count means one.
// Negative counts are passed through so the selection yields nothing.
func (p *Plan) Items() int {
	if p == nil || p.ItemCount == 0 {
		return 1
	}
	return p.ItemCount
}
