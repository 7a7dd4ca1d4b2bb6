package types

type DeliveryStatus string

const (
	DeliveryStatusProcessing DeliveryStatus = "PROCESSING"
	DeliveryStatusShipped    DeliveryStatus = "SHIPPED"
	DeliveryStatusDelivered  DeliveryStatus = "DELIVERED"
)

// Next returns the only status a delivery may move to from s, or "" when s is final.
func (s DeliveryStatus) Next() DeliveryStatus {
	switch s {
	case DeliveryStatusProcessing:
		return DeliveryStatusShipped
	case DeliveryStatusShipped:
		return DeliveryStatusDelivered
	default:
		return ""
	}
}

// DeliveryTrigger records what caused a delivery row to be planned.
type DeliveryTrigger string

const (
	DeliveryTriggerScan    DeliveryTrigger = "scan"
	DeliveryTriggerBilling DeliveryTrigger = "billing"
	DeliveryTriggerCustom  DeliveryTrigger = "custom"
)
