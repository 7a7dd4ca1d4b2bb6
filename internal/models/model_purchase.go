package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/fatflowers/scentbox/pkg/types"
)

type PurchaseExtra struct {
	// CheckoutSessionID is the provider checkout that produced the purchase.
	CheckoutSessionID string `json:"checkout_session_id,omitempty"`
	// RefundReason is copied from the provider refund event.
	RefundReason string `json:"refund_reason,omitempty"`
}

// Purchase is a one-off product purchase. Refunded rows keep RefundAt and no longer count as purchased.
type Purchase struct {
	ID                string                `gorm:"column:id;primary_key;type:uuid;index:idx_user_id_id,priority:2,sort:desc" json:"id"`
	UserID            string                `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_id_id,priority:1" json:"user_id"`
	ProductID         string                `gorm:"column:product_id;type:uuid;not null;uniqueIndex:unique_provider_payment_product,priority:3" json:"product_id"`
	ProviderID        types.PaymentProvider `gorm:"column:provider_id;type:varchar(64);not null;uniqueIndex:unique_provider_payment_product,priority:1" json:"provider_id"`
	ProviderPaymentID string                `gorm:"column:provider_payment_id;type:varchar(128);not null;uniqueIndex:unique_provider_payment_product,priority:2" json:"provider_payment_id"`
	Amount            decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string                `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	PurchaseAt        time.Time             `gorm:"column:purchase_at;not null" json:"purchase_at"`
	RefundAt          *time.Time            `gorm:"column:refund_at;default:null" json:"refund_at"`

	Extra     datatypes.JSONType[*PurchaseExtra] `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time                          `json:"created_at"`
	UpdatedAt time.Time                          `json:"updated_at"`
}

func (Purchase) TableName() string {
	return "purchase"
}

func (p *Purchase) Refunded() bool {
	return p != nil && p.RefundAt != nil
}
