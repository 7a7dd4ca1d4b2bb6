package notification_handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/scentbox/internal/app/service/fulfillment"
	"github.com/fatflowers/scentbox/internal/app/service/purchase"
	"github.com/fatflowers/scentbox/internal/app/service/subscription"
	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/billing"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/metrics"
	"github.com/fatflowers/scentbox/pkg/types"
)

// ErrInvalidSignature is returned before any side effect when a webhook fails verification.
var ErrInvalidSignature = billing.ErrInvalidSignature

// Verifier authenticates a raw webhook body.
type Verifier interface {
	Verify(payload []byte, header string) (*stripe.Event, error)
}

type NotificationLog interface {
	Save(ctx context.Context, log *models.PaymentNotificationLog)
	Handled(ctx context.Context, provider types.PaymentProvider, eventID string) (bool, error)
}

type SubscriptionSyncer interface {
	MarkCanceledByProvider(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error)
	CreateFromCheckout(ctx context.Context, in *subscription.CheckoutSubscription) (*models.Subscription, error)
}

type CycleFulfiller interface {
	FulfillByProviderSubscription(ctx context.Context, providerSubscriptionID string) (*fulfillment.SubscriptionResult, error)
}

type NotificationHandler struct {
	verifier  Verifier
	notifSvc  NotificationLog
	subSvc    SubscriptionSyncer
	fulfiller CycleFulfiller
	purchases purchase.PurchaseManager
	metrics   *metrics.Recorder
	Logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewNotificationHandler(
	verifier Verifier,
	notif NotificationLog,
	sub SubscriptionSyncer,
	fulfiller CycleFulfiller,
	purchases purchase.PurchaseManager,
	rec *metrics.Recorder,
	log *zap.SugaredLogger,
) *NotificationHandler {
	return &NotificationHandler{
		verifier:  verifier,
		notifSvc:  notif,
		subSvc:    sub,
		fulfiller: fulfiller,
		purchases: purchases,
		metrics:   rec,
		Logger:    log,
		now:       time.Now,
	}
}

// HandleStripe verifies and processes one Stripe webhook delivery. Signature failures
// return ErrInvalidSignature and leave no trace. Every verified event gets a
// 'received' log row and a 'handled' or 'handle_failed' row; an event already
// handled is acknowledged without running again.
func (h *NotificationHandler) HandleStripe(ctx context.Context, payload []byte, signature string) error {
	event, err := h.verifier.Verify(payload, signature)
	if err != nil {
		h.metrics.WebhookEvent("unknown", "invalid_signature")
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	parser, err := GetStripeNotificationParser(event, h.now())
	if err != nil {
		h.metrics.WebhookEvent("unknown", "malformed")
		return err
	}
	return h.HandleNotification(ctx, parser)
}

func (h *NotificationHandler) HandleNotification(ctx context.Context, parser NotificationParser) (resErr error) {
	log := logctx.FromCtx(ctx, h.Logger)
	provider := parser.GetProvider(ctx)
	eventID := parser.GetEventID(ctx)
	eventType := parser.GetEventType(ctx)

	handled, err := h.notifSvc.Handled(ctx, provider, eventID)
	if err != nil {
		log.Warnw("failed to check notification replay", "event_id", eventID, "error", err)
	}
	if handled {
		log.Infow("notification already handled", "event_id", eventID, "event_type", eventType)
		h.metrics.WebhookEvent(eventType, "replayed")
		return nil
	}

	var userID *string
	if v, e := parser.GetUserID(ctx); e == nil && v != "" {
		userID = lo.ToPtr(v)
	}
	traceID := logctx.TraceID(ctx)
	dataBytes, _ := json.Marshal(parser.GetData(ctx))
	if !json.Valid(dataBytes) {
		dataBytes = []byte("null")
	}

	h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
		ProviderID:       provider,
		UserID:           userID,
		TraceID:          traceID,
		EventID:          eventID,
		EventType:        eventType,
		NotificationTime: parser.GetNotificationTime(ctx),
		Data:             datatypes.JSON(dataBytes),
		Status:           models.PaymentNotificationLogStatusReceived,
	})

	var (
		action *Action
		result any
	)
	defer func() {
		resMap := map[string]any{
			"action": action,
			"result": result,
		}
		status := models.PaymentNotificationLogStatusHandled
		outcome := "handled"
		if resErr != nil {
			resMap["error"] = resErr.Error()
			status = models.PaymentNotificationLogStatusHandleFailed
			outcome = "failed"
		}
		resBytes, _ := json.Marshal(resMap)
		h.notifSvc.Save(ctx, &models.PaymentNotificationLog{
			ProviderID:       provider,
			UserID:           userID,
			TraceID:          traceID,
			EventID:          eventID,
			EventType:        eventType,
			NotificationTime: h.now(),
			Data:             datatypes.JSON(dataBytes),
			Result:           lo.ToPtr(datatypes.JSON(resBytes)),
			Status:           status,
		})
		h.metrics.WebhookEvent(eventType, outcome)
	}()

	action, resErr = parser.GetAction(ctx)
	if resErr != nil {
		log.Errorw("failed to parse notification", "event_id", eventID, "event_type", eventType, "error", resErr)
		resErr = fmt.Errorf("failed to parse notification: %w", resErr)
		return resErr
	}
	log.Infow("notification parsed", "event_id", eventID, "event_type", eventType, "action", action.Kind)

	result, resErr = h.dispatch(ctx, action)
	return resErr
}

func (h *NotificationHandler) dispatch(ctx context.Context, action *Action) (any, error) {
	switch action.Kind {
	case ActionIgnore:
		return nil, nil
	case ActionFulfillCycle:
		res, err := h.fulfiller.FulfillByProviderSubscription(ctx, action.ProviderSubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("failed to fulfill cycle: %w", err)
		}
		if !res.Success {
			return res, fmt.Errorf("cycle not fulfilled: %s", res.Error)
		}
		return res, nil
	case ActionCancelSubscription:
		sub, err := h.subSvc.MarkCanceledByProvider(ctx, action.ProviderSubscriptionID)
		if errors.Is(err, subscription.ErrNotFound) {
			// deleted before the checkout event reached us
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to cancel subscription: %w", err)
		}
		return sub, nil
	case ActionCreateSubscription:
		sub, err := h.subSvc.CreateFromCheckout(ctx, action.Checkout)
		if err != nil {
			return nil, fmt.Errorf("failed to create subscription: %w", err)
		}
		return sub, nil
	case ActionRecordPurchase:
		var stored []*models.Purchase
		for _, req := range action.Purchases {
			p, err := h.purchases.RecordPurchase(ctx, req)
			if err != nil {
				return stored, fmt.Errorf("failed to record purchase of %s: %w", req.ProductRef, err)
			}
			stored = append(stored, p)
		}
		return stored, nil
	case ActionRefundPurchase:
		n, err := h.purchases.RefundPurchase(ctx, action.Refund)
		if errors.Is(err, purchase.ErrNotFound) {
			// refunds of subscription invoices have no purchase row
			return map[string]int64{"refunded": 0}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to refund purchase: %w", err)
		}
		return map[string]int64{"refunded": n}, nil
	default:
		return nil, fmt.Errorf("unsupported notification action: %s", action.Kind)
	}
}

var Module = fx.Options(
	fx.Provide(NewNotificationHandler),
)
