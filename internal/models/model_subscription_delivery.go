package models

import (
	"time"

	"github.com/fatflowers/scentbox/pkg/types"
)

// SubscriptionDelivery is one product planned for one subscription cycle.
// (subscription_id, cycle_key, slot) is unique so a cycle can never be planned twice.
type SubscriptionDelivery struct {
	ID             string `gorm:"column:id;type:uuid;primary_key;index:idx_user_id_id,priority:2,sort:desc" json:"id"`
	SubscriptionID string `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:unique_subscription_cycle_slot,priority:1" json:"subscription_id"`
	UserID         string `gorm:"column:user_id;type:varchar(64);not null;index:idx_user_id_id,priority:1" json:"user_id"`
	// ProductID is nil when the shipped item is not backed by the catalog.
	ProductID   *string              `gorm:"column:product_id;type:uuid;default:null" json:"product_id"`
	ProductName string               `gorm:"column:product_name;type:varchar(255);not null" json:"product_name"`
	Status      types.DeliveryStatus `gorm:"column:status;type:varchar(64);not null;index" json:"status"`
	// ShippingDate is when the warehouse should ship the item.
	ShippingDate   time.Time             `gorm:"column:shipping_date;not null;index" json:"shipping_date"`
	CustomSelected bool                  `gorm:"column:custom_selected;not null;default:false" json:"custom_selected"`
	CycleKey       string                `gorm:"column:cycle_key;type:varchar(16);not null;uniqueIndex:unique_subscription_cycle_slot,priority:2" json:"cycle_key"`
	Slot           int                   `gorm:"column:slot;not null;uniqueIndex:unique_subscription_cycle_slot,priority:3" json:"slot"`
	Trigger        types.DeliveryTrigger `gorm:"column:trigger;type:varchar(32);not null" json:"trigger"`
	ShippedAt      *time.Time            `gorm:"column:shipped_at;default:null" json:"shipped_at"`
	DeliveredAt    *time.Time            `gorm:"column:delivered_at;default:null" json:"delivered_at"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

func (SubscriptionDelivery) TableName() string { return "subscription_delivery" }
