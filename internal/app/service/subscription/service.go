// Package subscription owns the subscription lifecycle: pause, resume, cancel,
// plan and preference changes, and the provider-driven create/cancel sync.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/billing"
	"github.com/fatflowers/scentbox/internal/platform/mq"
	"github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/metrics"
	"github.com/fatflowers/scentbox/pkg/types"
)

var (
	ErrNotFound          = errors.New("subscription not found")
	ErrInvalidTransition = errors.New("invalid subscription status transition")
	ErrPlanNotFound      = errors.New("plan not found")
	ErrInvalidPreference = errors.New("invalid delivery preference")
)

// ProductResolver validates product references given by subscribers.
type ProductResolver interface {
	ResolveProductID(ctx context.Context, id string) (string, error)
}

type Service struct {
	cfg       *config.Config
	repo      Repository
	billing   billing.Client
	catalog   ProductResolver
	publisher mq.Publisher
	metrics   *metrics.Recorder
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewService(
	cfg *config.Config,
	repo Repository,
	billingClient billing.Client,
	catalog ProductResolver,
	publisher mq.Publisher,
	rec *metrics.Recorder,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		billing:   billingClient,
		catalog:   catalog,
		publisher: publisher,
		metrics:   rec,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// load returns the subscription owned by userID. An empty userID skips the ownership check.
func (s *Service) load(ctx context.Context, userID, id string) (*models.Subscription, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if userID != "" && sub.UserID != userID {
		return nil, ErrNotFound
	}
	return sub, nil
}

func snapshot(sub *models.Subscription) *models.Subscription {
	cp := *sub
	return &cp
}

// callBilling runs a provider call whose failure must not block the local change.
// The outcome is recorded on the audit log.
func (s *Service) callBilling(ctx context.Context, sub *models.Subscription, op string, call func(id string) error) datatypes.JSONMap {
	extra := datatypes.JSONMap{"billing_op": op}
	if sub.ProviderID != types.PaymentProviderStripe || sub.ProviderSubscriptionID == nil {
		extra["billing_result"] = "skipped"
		return extra
	}
	if err := call(*sub.ProviderSubscriptionID); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("billing call failed; continuing with local change",
			"op", op, "subscription_id", sub.ID, "provider_subscription_id", *sub.ProviderSubscriptionID, "error", err)
		extra["billing_result"] = "failed"
		extra["billing_error"] = err.Error()
		if errors.Is(err, billing.ErrResourceMissing) {
			extra["billing_result"] = "resource_missing"
		}
		return extra
	}
	extra["billing_result"] = "ok"
	return extra
}

func checkTransition(sub *models.Subscription, to types.SubscriptionStatus) error {
	if !sub.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, to)
	}
	return nil
}

func (s *Service) apply(ctx context.Context, c *Change) error {
	if err := s.repo.Apply(ctx, c); err != nil {
		return err
	}
	s.metrics.Transition(string(c.Reason))
	logctx.FromCtx(ctx, s.log).Infow("subscription changed",
		"subscription_id", c.After.ID, "user_id", c.After.UserID, "reason", c.Reason,
		"status", c.After.Status)

	evt := &mq.SubscriptionEvent{
		SubscriptionID: c.After.ID,
		UserID:         c.After.UserID,
		Status:         string(c.After.Status),
		Reason:         string(c.Reason),
		OccurredAt:     s.now(),
	}
	key := mq.RoutingKeySubscriptionPrefix + strings.ToLower(string(c.After.Status))
	if err := s.publisher.Publish(ctx, key, evt); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to publish subscription event", "subscription_id", c.After.ID, "error", err)
	}
	return nil
}

// Pause stops deliveries. Billing failures, including an unknown provider
// subscription, are logged and the subscription is paused anyway.
func (s *Service) Pause(ctx context.Context, userID, id string) (*models.Subscription, error) {
	sub, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(sub, types.SubscriptionStatusPaused); err != nil {
		return nil, err
	}
	before := snapshot(sub)
	extra := s.callBilling(ctx, sub, "pause", func(pid string) error { return s.billing.PauseSubscription(ctx, pid) })

	sub.Status = types.SubscriptionStatusPaused
	if err := s.apply(ctx, &Change{Before: before, After: sub, Reason: types.SubscriptionChangeReasonPause, Extra: extra}); err != nil {
		return nil, err
	}
	return sub, nil
}

// Resume reactivates a paused subscription; the next delivery is one period from now.
func (s *Service) Resume(ctx context.Context, userID, id string) (*models.Subscription, error) {
	sub, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(sub, types.SubscriptionStatusActive); err != nil {
		return nil, err
	}
	before := snapshot(sub)
	extra := s.callBilling(ctx, sub, "resume", func(pid string) error { return s.billing.ResumeSubscription(ctx, pid) })

	next := s.now().Add(sub.Plan().BillingPeriod())
	sub.Status = types.SubscriptionStatusActive
	sub.NextDeliveryDate = &next
	if err := s.apply(ctx, &Change{Before: before, After: sub, Reason: types.SubscriptionChangeReasonResume, Extra: extra}); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) Cancel(ctx context.Context, userID, id string) (*models.Subscription, error) {
	sub, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(sub, types.SubscriptionStatusCanceled); err != nil {
		return nil, err
	}
	before := snapshot(sub)
	extra := s.callBilling(ctx, sub, "cancel", func(pid string) error { return s.billing.CancelSubscription(ctx, pid) })

	now := s.now()
	sub.Status = types.SubscriptionStatusCanceled
	sub.EndDate = &now
	if err := s.apply(ctx, &Change{Before: before, After: sub, Reason: types.SubscriptionChangeReasonCancel, Extra: extra}); err != nil {
		return nil, err
	}
	return sub, nil
}

// UpdatePlan switches the subscription to a configured plan.
func (s *Service) UpdatePlan(ctx context.Context, userID, id, planID string) (*models.Subscription, error) {
	plan := s.cfg.GetPlanByID(planID)
	if plan == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	sub, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == types.SubscriptionStatusCanceled {
		return nil, fmt.Errorf("%w: subscription is canceled", ErrInvalidTransition)
	}
	before := snapshot(sub)
	extra := s.callBilling(ctx, sub, "change_price", func(pid string) error {
		return s.billing.ChangeSubscriptionPrice(ctx, pid, plan.ProviderPriceID)
	})
	extra["plan_id"] = plan.ID

	sub.ApplyPlan(plan)
	if err := s.apply(ctx, &Change{Before: before, After: sub, Reason: types.SubscriptionChangeReasonUpdatePlan, Extra: extra}); err != nil {
		return nil, err
	}
	return sub, nil
}

// PreferenceUpdate carries the fields a subscriber may change. Nil fields are left as they are.
type PreferenceUpdate struct {
	Preference            *types.DeliveryPreference `json:"delivery_preference"`
	PreferCustomSelection *bool                     `json:"prefer_custom_selection"`
	// ProductRef is a local or content-store product ID; an empty string clears the designated product.
	ProductRef *string `json:"product_id"`
}

func (s *Service) UpdateDeliveryPreference(ctx context.Context, userID, id string, req *PreferenceUpdate) (*models.Subscription, error) {
	if req == nil {
		return nil, ErrInvalidPreference
	}
	if req.Preference != nil && !req.Preference.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPreference, *req.Preference)
	}
	sub, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == types.SubscriptionStatusCanceled {
		return nil, fmt.Errorf("%w: subscription is canceled", ErrInvalidTransition)
	}
	before := snapshot(sub)

	if req.Preference != nil {
		sub.DeliveryPreference = *req.Preference
	}
	if req.PreferCustomSelection != nil {
		sub.PreferCustomSelection = *req.PreferCustomSelection
	}
	if req.ProductRef != nil {
		if *req.ProductRef == "" {
			sub.ProductID = nil
		} else {
			productID, err := s.catalog.ResolveProductID(ctx, *req.ProductRef)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve product: %w", err)
			}
			sub.ProductID = &productID
		}
	}
	if err := s.apply(ctx, &Change{Before: before, After: sub, Reason: types.SubscriptionChangeReasonUpdatePreference}); err != nil {
		return nil, err
	}
	return sub, nil
}

// MarkCanceledByProvider mirrors a cancellation that happened at the provider.
// The provider is not called back. Already canceled subscriptions are returned unchanged.
func (s *Service) MarkCanceledByProvider(ctx context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	sub, err := s.repo.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == types.SubscriptionStatusCanceled {
		return sub, nil
	}
	before := snapshot(sub)
	now := s.now()
	sub.Status = types.SubscriptionStatusCanceled
	sub.EndDate = &now
	if err := s.apply(ctx, &Change{
		Before: before,
		After:  sub,
		Reason: types.SubscriptionChangeReasonProviderCancel,
		Extra:  datatypes.JSONMap{"provider_subscription_id": providerSubscriptionID},
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// CheckoutSubscription is a paid provider checkout that opened a subscription.
type CheckoutSubscription struct {
	UserID                 string
	ProviderSubscriptionID string
	PriceID                string
	CheckoutSessionID      string
}

// CreateFromCheckout creates the ACTIVE subscription for a completed checkout.
// The first delivery is due immediately so the next scan picks it up.
// Replaying the same checkout returns the existing subscription.
func (s *Service) CreateFromCheckout(ctx context.Context, in *CheckoutSubscription) (*models.Subscription, error) {
	if in == nil || in.UserID == "" || in.ProviderSubscriptionID == "" {
		return nil, fmt.Errorf("invalid checkout: user and provider subscription are required")
	}
	plan, err := s.cfg.GetPlanByProviderPriceID(types.PaymentProviderStripe, in.PriceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanNotFound, err)
	}

	now := s.now()
	providerSubscriptionID := in.ProviderSubscriptionID
	sub := &models.Subscription{
		UserID:                 in.UserID,
		Status:                 types.SubscriptionStatusActive,
		DeliveryPreference:     types.DeliveryPreferenceFromFavorites,
		NextDeliveryDate:       &now,
		ProviderID:             types.PaymentProviderStripe,
		ProviderSubscriptionID: &providerSubscriptionID,
	}
	if extra, err := json.Marshal(map[string]string{"checkout_session_id": in.CheckoutSessionID}); err == nil {
		sub.Extra = datatypes.JSON(extra)
	}
	sub.ApplyPlan(plan)

	stored, created, err := s.repo.Create(ctx, sub, datatypes.JSONMap{"checkout_session_id": in.CheckoutSessionID})
	if err != nil {
		return nil, err
	}
	if !created {
		logctx.FromCtx(ctx, s.log).Infow("checkout subscription already exists",
			"subscription_id", stored.ID, "provider_subscription_id", providerSubscriptionID)
		return stored, nil
	}

	s.metrics.Transition(string(types.SubscriptionChangeReasonCreate))
	evt := &mq.SubscriptionEvent{
		SubscriptionID: stored.ID,
		UserID:         stored.UserID,
		Status:         string(stored.Status),
		Reason:         string(types.SubscriptionChangeReasonCreate),
		OccurredAt:     now,
	}
	if err := s.publisher.Publish(ctx, mq.RoutingKeySubscriptionPrefix+strings.ToLower(string(stored.Status)), evt); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to publish subscription event", "subscription_id", stored.ID, "error", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription created from checkout",
		"subscription_id", stored.ID, "user_id", stored.UserID, "plan_id", stored.PlanID)
	return stored, nil
}

func (s *Service) Get(ctx context.Context, userID, id string) (*models.Subscription, error) {
	return s.load(ctx, userID, id)
}

// ScanSubscriptions lists subscriptions for the admin console.
func (s *Service) ScanSubscriptions(ctx context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.Subscription], error) {
	return s.repo.Scan(ctx, req, "")
}

func (s *Service) ListUserSubscriptions(ctx context.Context, userID string, req *types.ScanRequest) (*types.ScanResponse[*models.Subscription], error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	return s.repo.Scan(ctx, req, userID)
}
