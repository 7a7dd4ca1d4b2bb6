package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/billing"
	"github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/types"
)

const testSecret = "whsec_test"

type memLog struct {
	rows []*models.PaymentNotificationLog
}

func (m *memLog) Save(_ context.Context, log *models.PaymentNotificationLog) {
	m.rows = append(m.rows, log)
}

func (m *memLog) Handled(_ context.Context, provider types.PaymentProvider, eventID string) (bool, error) {
	for _, r := range m.rows {
		if r.ProviderID == provider && r.EventID == eventID && r.Status == models.PaymentNotificationLogStatusHandled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLog) statuses() []models.PaymentNotificationLogStatus {
	var out []models.PaymentNotificationLogStatus
	for _, r := range m.rows {
		out = append(out, r.Status)
	}
	return out
}

type stubSubscriptions struct {
	canceled  []string
	checkouts []*subscription.CheckoutSubscription
}

func (s *stubSubscriptions) MarkCanceledByProvider(_ context.Context, id string) (*models.Subscription, error) {
	if id == "sub_missing" {
		return nil, subscription.ErrNotFound
	}
	s.canceled = append(s.canceled, id)
	return &models.Subscription{ID: "s-" + id, Status: types.SubscriptionStatusCanceled}, nil
}

func (s *stubSubscriptions) CreateFromCheckout(_ context.Context, in *subscription.CheckoutSubscription) (*models.Subscription, error) {
	s.checkouts = append(s.checkouts, in)
	return &models.Subscription{ID: "s-new", UserID: in.UserID, Status: types.SubscriptionStatusActive}, nil
}

type stubFulfiller struct {
	calls  []string
	result *fulfillment.SubscriptionResult
}

func (f *stubFulfiller) FulfillByProviderSubscription(_ context.Context, id string) (*fulfillment.SubscriptionResult, error) {
	f.calls = append(f.calls, id)
	if f.result != nil {
		return f.result, nil
	}
	return &fulfillment.SubscriptionResult{SubscriptionID: "s-" + id, Success: true, SelectedProductNames: []string{"Rose"}}, nil
}

type stubPurchases struct {
	recorded []*purchase.RecordPurchaseRequest
	refunds  []*purchase.RefundRequest
}

func (p *stubPurchases) RecordPurchase(_ context.Context, req *purchase.RecordPurchaseRequest) (*models.Purchase, error) {
	p.recorded = append(p.recorded, req)
	return &models.Purchase{ID: fmt.Sprintf("p%d", len(p.recorded)), ProductID: req.ProductRef}, nil
}

func (p *stubPurchases) RefundPurchase(_ context.Context, req *purchase.RefundRequest) (int64, error) {
	if req.ProviderPaymentID == "pi_unknown" {
		return 0, purchase.ErrNotFound
	}
	p.refunds = append(p.refunds, req)
	return 1, nil
}

func (p *stubPurchases) ScanPurchases(context.Context, *types.ScanRequest) (*types.ScanResponse[*models.Purchase], error) {
	return &types.ScanResponse[*models.Purchase]{}, nil
}

func (p *stubPurchases) ListUserPurchases(context.Context, string, *types.ScanRequest) (*types.ScanResponse[*models.Purchase], error) {
	return &types.ScanResponse[*models.Purchase]{}, nil
}

type harness struct {
	h         *NotificationHandler
	log       *memLog
	subs      *stubSubscriptions
	fulfiller *stubFulfiller
	purchases *stubPurchases
}

func newHarness() *harness {
	hs := &harness{
		log:       &memLog{},
		subs:      &stubSubscriptions{},
		fulfiller: &stubFulfiller{},
		purchases: &stubPurchases{},
	}
	verifier := billing.NewWebhookVerifier(&config.Config{Stripe: config.StripeConfig{WebhookSecret: testSecret}})
	hs.h = NewNotificationHandler(verifier, hs.log, hs.subs, hs.fulfiller, hs.purchases, nil, zap.NewNop().Sugar())
	hs.h.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return hs
}

func event(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   typ,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return b
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	}).Header
}

func TestHandleStripe_InvalidSignatureHasNoSideEffects(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_1", "invoice.paid", map[string]any{
		"id": "in_1", "billing_reason": "subscription_cycle", "subscription": "sub_1",
	})

	err := hs.h.HandleStripe(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.Empty(t, hs.log.rows)
	require.Empty(t, hs.fulfiller.calls)
}

func TestHandleStripe_InvoicePaidFulfillsOnce(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_1", "invoice.paid", map[string]any{
		"id": "in_1", "billing_reason": "subscription_cycle", "subscription": "sub_1",
	})

	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Equal(t, []string{"sub_1"}, hs.fulfiller.calls)
	require.Equal(t, []models.PaymentNotificationLogStatus{
		models.PaymentNotificationLogStatusReceived,
		models.PaymentNotificationLogStatusHandled,
	}, hs.log.statuses())
	require.Equal(t, "evt_1", hs.log.rows[1].EventID)
	require.Equal(t, "invoice.paid", hs.log.rows[1].EventType)

	// provider retries deliver the same event again
	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Len(t, hs.fulfiller.calls, 1)
	require.Len(t, hs.log.rows, 2)
}

func TestHandleStripe_InvoiceIgnoredForManualBilling(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_2", "invoice.paid", map[string]any{
		"id": "in_2", "billing_reason": "manual", "subscription": "sub_1",
	})

	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Empty(t, hs.fulfiller.calls)
}

func TestHandleStripe_FulfillmentFailureIsLogged(t *testing.T) {
	hs := newHarness()
	hs.fulfiller.result = &fulfillment.SubscriptionResult{Success: false, Error: "delivery cycle already scheduled"}
	payload := event(t, "evt_3", "invoice.paid", map[string]any{
		"id": "in_3", "billing_reason": "subscription_cycle", "subscription": "sub_1",
	})

	err := hs.h.HandleStripe(context.Background(), payload, sign(payload))
	require.Error(t, err)
	require.Equal(t, models.PaymentNotificationLogStatusHandleFailed, hs.log.rows[1].Status)
	require.Contains(t, string(*hs.log.rows[1].Result), "delivery cycle already scheduled")

	// failed events are not treated as replays
	hs.fulfiller.result = nil
	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Len(t, hs.fulfiller.calls, 2)
}

func TestHandleStripe_SubscriptionDeleted(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_4", "customer.subscription.deleted", map[string]any{"id": "sub_1"})
	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Equal(t, []string{"sub_1"}, hs.subs.canceled)

	missing := event(t, "evt_5", "customer.subscription.deleted", map[string]any{"id": "sub_missing"})
	require.NoError(t, hs.h.HandleStripe(context.Background(), missing, sign(missing)))
}

func TestHandleStripe_CheckoutSubscription(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_6", "checkout.session.completed", map[string]any{
		"id":                  "cs_1",
		"mode":                "subscription",
		"client_reference_id": "u1",
		"subscription":        "sub_9",
		"metadata":            map[string]string{"price_id": "price_trio"},
	})

	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Len(t, hs.subs.checkouts, 1)
	require.Equal(t, subscription.CheckoutSubscription{
		UserID:                 "u1",
		ProviderSubscriptionID: "sub_9",
		PriceID:                "price_trio",
		CheckoutSessionID:      "cs_1",
	}, *hs.subs.checkouts[0])
	require.Equal(t, "u1", *hs.log.rows[0].UserID)
}

func TestHandleStripe_CheckoutPurchase(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_7", "checkout.session.completed", map[string]any{
		"id":             "cs_2",
		"mode":           "payment",
		"payment_intent": "pi_1",
		"amount_total":   5000,
		"currency":       "eur",
		"created":        1777000000,
		"metadata":       map[string]string{"user_id": "u2", "product_id": "cms-rose, cms-oud,cms-rose"},
	})

	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Len(t, hs.purchases.recorded, 2)
	for i, ref := range []string{"cms-rose", "cms-oud"} {
		req := hs.purchases.recorded[i]
		require.Equal(t, ref, req.ProductRef)
		require.Equal(t, "u2", req.UserID)
		require.Equal(t, "pi_1", req.ProviderPaymentID)
		require.Equal(t, "25", req.Amount.String())
		require.Equal(t, time.Unix(1777000000, 0).UTC(), req.PurchaseAt)
	}

	noProduct := event(t, "evt_8", "checkout.session.completed", map[string]any{
		"id": "cs_3", "mode": "payment", "client_reference_id": "u2",
	})
	err := hs.h.HandleStripe(context.Background(), noProduct, sign(noProduct))
	require.True(t, errors.Is(err, ErrMalformedEvent))
}

func TestHandleStripe_ChargeRefunded(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_9", "charge.refunded", map[string]any{
		"id":             "ch_1",
		"refunded":       true,
		"payment_intent": "pi_1",
		"refunds": map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": "re_1", "reason": "requested_by_customer", "created": 1777000100}},
		},
	})
	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Len(t, hs.purchases.refunds, 1)
	require.Equal(t, "pi_1", hs.purchases.refunds[0].ProviderPaymentID)
	require.Equal(t, "requested_by_customer", hs.purchases.refunds[0].Reason)
	require.Equal(t, time.Unix(1777000100, 0).UTC(), hs.purchases.refunds[0].RefundAt)

	partial := event(t, "evt_10", "charge.refunded", map[string]any{"id": "ch_2", "refunded": false, "payment_intent": "pi_2"})
	require.NoError(t, hs.h.HandleStripe(context.Background(), partial, sign(partial)))
	require.Len(t, hs.purchases.refunds, 1)

	unknown := event(t, "evt_11", "charge.refunded", map[string]any{"id": "ch_3", "refunded": true, "payment_intent": "pi_unknown"})
	require.NoError(t, hs.h.HandleStripe(context.Background(), unknown, sign(unknown)))
}

func TestHandleStripe_UnknownEventAcknowledged(t *testing.T) {
	hs := newHarness()
	payload := event(t, "evt_12", "customer.created", map[string]any{"id": "cus_1"})
	require.NoError(t, hs.h.HandleStripe(context.Background(), payload, sign(payload)))
	require.Equal(t, models.PaymentNotificationLogStatusHandled, hs.log.rows[1].Status)
}
