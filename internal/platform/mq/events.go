package mq

import "time"

// Routing keys published on the events exchange.
const (
	RoutingKeyDeliveryScheduled = "delivery.scheduled"
	RoutingKeyDeliveryStatus    = "delivery.status_changed"
	// RoutingKeySubscriptionPrefix is suffixed with the lower-cased status, e.g. "subscription.paused".
	RoutingKeySubscriptionPrefix = "subscription."
)

type DeliveryScheduledEvent struct {
	SubscriptionID   string     `json:"subscription_id"`
	UserID           string     `json:"user_id"`
	CycleKey         string     `json:"cycle_key"`
	Trigger          string     `json:"trigger"`
	DeliveryIDs      []string   `json:"delivery_ids"`
	ProductNames     []string   `json:"product_names"`
	NextDeliveryDate *time.Time `json:"next_delivery_date"`
	OccurredAt       time.Time  `json:"occurred_at"`
}

type DeliveryStatusEvent struct {
	DeliveryID     string    `json:"delivery_id"`
	SubscriptionID string    `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type SubscriptionEvent struct {
	SubscriptionID string    `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason"`
	OccurredAt     time.Time `json:"occurred_at"`
}
