package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"

	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/pkg/types"
)

// Checkout session metadata keys set by the storefront when it opens a checkout.
const (
	MetadataUserID    = "user_id"
	MetadataPriceID   = "price_id"
	MetadataProductID = "product_id"
)

var ErrMalformedEvent = errors.New("malformed stripe event")

type StripeNotificationParser struct {
	NotificationTime time.Time
	Event            *stripe.Event
}

func (p *StripeNotificationParser) GetProvider(ctx context.Context) types.PaymentProvider {
	return types.PaymentProviderStripe
}

func (p *StripeNotificationParser) GetNotificationTime(ctx context.Context) time.Time {
	return p.NotificationTime
}

func (p *StripeNotificationParser) GetEventID(ctx context.Context) string {
	return p.Event.ID
}

func (p *StripeNotificationParser) GetEventType(ctx context.Context) string {
	return string(p.Event.Type)
}

// GetUserID only knows the user for checkout events.
func (p *StripeNotificationParser) GetUserID(ctx context.Context) (string, error) {
	if p.Event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return "", fmt.Errorf("event %s carries no user", p.Event.Type)
	}
	var session stripe.CheckoutSession
	if err := p.decode(&session); err != nil {
		return "", err
	}
	if userID := checkoutUserID(&session); userID != "" {
		return userID, nil
	}
	return "", fmt.Errorf("checkout session %s has no user", session.ID)
}

func (p *StripeNotificationParser) GetAction(ctx context.Context) (*Action, error) {
	switch p.Event.Type {
	case stripe.EventTypeInvoicePaid:
		return p.invoicePaid()
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := p.decode(&sub); err != nil {
			return nil, err
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("%w: subscription id is empty", ErrMalformedEvent)
		}
		return &Action{Kind: ActionCancelSubscription, ProviderSubscriptionID: sub.ID}, nil
	case stripe.EventTypeCheckoutSessionCompleted:
		return p.checkoutCompleted()
	case stripe.EventTypeChargeRefunded:
		return p.chargeRefunded()
	default:
		return &Action{Kind: ActionIgnore}, nil
	}
}

func (p *StripeNotificationParser) GetData(ctx context.Context) any {
	if p.Event.Data == nil {
		return nil
	}
	return p.Event.Data.Raw
}

func (p *StripeNotificationParser) decode(v any) error {
	if p.Event.Data == nil || len(p.Event.Data.Raw) == 0 {
		return fmt.Errorf("%w: empty data object", ErrMalformedEvent)
	}
	if err := json.Unmarshal(p.Event.Data.Raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// invoicePaid starts a delivery cycle for renewal and first invoices.
func (p *StripeNotificationParser) invoicePaid() (*Action, error) {
	var inv stripe.Invoice
	if err := p.decode(&inv); err != nil {
		return nil, err
	}
	switch inv.BillingReason {
	case stripe.InvoiceBillingReasonSubscriptionCycle, stripe.InvoiceBillingReasonSubscriptionCreate:
	default:
		return &Action{Kind: ActionIgnore}, nil
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return nil, fmt.Errorf("%w: invoice %s has no subscription", ErrMalformedEvent, inv.ID)
	}
	return &Action{Kind: ActionFulfillCycle, ProviderSubscriptionID: inv.Subscription.ID}, nil
}

func (p *StripeNotificationParser) checkoutCompleted() (*Action, error) {
	var session stripe.CheckoutSession
	if err := p.decode(&session); err != nil {
		return nil, err
	}
	userID := checkoutUserID(&session)
	if userID == "" {
		return nil, fmt.Errorf("%w: checkout session %s has no user", ErrMalformedEvent, session.ID)
	}

	switch session.Mode {
	case stripe.CheckoutSessionModeSubscription:
		if session.Subscription == nil || session.Subscription.ID == "" {
			return nil, fmt.Errorf("%w: checkout session %s has no subscription", ErrMalformedEvent, session.ID)
		}
		return &Action{
			Kind: ActionCreateSubscription,
			Checkout: &subscription.CheckoutSubscription{
				UserID:                 userID,
				ProviderSubscriptionID: session.Subscription.ID,
				PriceID:                session.Metadata[MetadataPriceID],
				CheckoutSessionID:      session.ID,
			},
		}, nil
	case stripe.CheckoutSessionModePayment:
		return p.checkoutPurchases(&session, userID)
	default:
		return &Action{Kind: ActionIgnore}, nil
	}
}

// checkoutPurchases splits a paid checkout into one purchase per product.
// product_id metadata holds a comma separated list; the total is shared evenly.
func (p *StripeNotificationParser) checkoutPurchases(session *stripe.CheckoutSession, userID string) (*Action, error) {
	productRefs := lo.Uniq(lo.Compact(lo.Map(strings.Split(session.Metadata[MetadataProductID], ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	})))
	if len(productRefs) == 0 {
		return nil, fmt.Errorf("%w: checkout session %s has no product", ErrMalformedEvent, session.ID)
	}
	paymentID := session.ID
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		paymentID = session.PaymentIntent.ID
	}
	purchaseAt := p.NotificationTime
	if session.Created > 0 {
		purchaseAt = time.Unix(session.Created, 0).UTC()
	}
	share := decimal.New(session.AmountTotal, -2).Div(decimal.NewFromInt(int64(len(productRefs)))).Round(2)

	action := &Action{Kind: ActionRecordPurchase}
	for _, ref := range productRefs {
		action.Purchases = append(action.Purchases, &purchase.RecordPurchaseRequest{
			UserID:            userID,
			ProductRef:        ref,
			ProviderID:        types.PaymentProviderStripe,
			ProviderPaymentID: paymentID,
			Amount:            share,
			Currency:          string(session.Currency),
			PurchaseAt:        purchaseAt,
			CheckoutSessionID: session.ID,
		})
	}
	return action, nil
}

func (p *StripeNotificationParser) chargeRefunded() (*Action, error) {
	var charge stripe.Charge
	if err := p.decode(&charge); err != nil {
		return nil, err
	}
	// partial refunds keep the purchase
	if !charge.Refunded {
		return &Action{Kind: ActionIgnore}, nil
	}
	paymentID := charge.ID
	if charge.PaymentIntent != nil && charge.PaymentIntent.ID != "" {
		paymentID = charge.PaymentIntent.ID
	}
	refund := &purchase.RefundRequest{
		ProviderID:        types.PaymentProviderStripe,
		ProviderPaymentID: paymentID,
		RefundAt:          p.NotificationTime,
	}
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		latest := charge.Refunds.Data[0]
		refund.Reason = string(latest.Reason)
		if latest.Created > 0 {
			refund.RefundAt = time.Unix(latest.Created, 0).UTC()
		}
	}
	return &Action{Kind: ActionRefundPurchase, Refund: refund}, nil
}

func checkoutUserID(session *stripe.CheckoutSession) string {
	if session.ClientReferenceID != "" {
		return session.ClientReferenceID
	}
	return session.Metadata[MetadataUserID]
}

// GetStripeNotificationParser wraps an event whose signature was already verified.
func GetStripeNotificationParser(event *stripe.Event, notificationTime time.Time) (NotificationParser, error) {
	if event == nil || event.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	if notificationTime.IsZero() {
		notificationTime = time.Now()
	}
	return &StripeNotificationParser{
		NotificationTime: notificationTime,
		Event:            event,
	}, nil
}
