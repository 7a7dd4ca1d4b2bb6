package notification_handler

import (
	"context"
	"time"

	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/pkg/types"
)

type ActionKind string

const (
	// ActionIgnore acknowledges an event that needs no work.
	ActionIgnore             ActionKind = "ignore"
	ActionFulfillCycle       ActionKind = "fulfill_cycle"
	ActionCancelSubscription ActionKind = "cancel_subscription"
	ActionCreateSubscription ActionKind = "create_subscription"
	ActionRecordPurchase     ActionKind = "record_purchase"
	ActionRefundPurchase     ActionKind = "refund_purchase"
)

// Action is the domain work a verified notification asks for.
// Only the field matching Kind is set.
type Action struct {
	Kind                   ActionKind                         `json:"kind"`
	ProviderSubscriptionID string                             `json:"provider_subscription_id,omitempty"`
	Checkout               *subscription.CheckoutSubscription `json:"checkout,omitempty"`
	Purchases              []*purchase.RecordPurchaseRequest  `json:"purchases,omitempty"`
	Refund                 *purchase.RefundRequest            `json:"refund,omitempty"`
}

type NotificationParser interface {
	GetProvider(ctx context.Context) types.PaymentProvider
	GetNotificationTime(ctx context.Context) time.Time
	GetEventID(ctx context.Context) string
	GetEventType(ctx context.Context) string
	GetUserID(ctx context.Context) (string, error)
	GetAction(ctx context.Context) (*Action, error)
	GetData(ctx context.Context) any
}
