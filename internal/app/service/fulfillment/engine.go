// Package fulfillment plans the deliveries of every due subscription cycle.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/preference"
	"github.com/fatflowers/scentbox/internal/app/service/selection"
	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/lock"
	"github.com/fatflowers/scentbox/internal/platform/mq"
	"github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/metrics"
	"github.com/fatflowers/scentbox/pkg/tool"
	"github.com/fatflowers/scentbox/pkg/types"
)

var (
	ErrScanInProgress            = errors.New("fulfillment scan already running")
	ErrCycleAlreadyScheduled     = errors.New("delivery cycle already scheduled")
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionNotActive     = errors.New("subscription is not active")
	ErrDeliveryNotFound          = errors.New("delivery not found")
	ErrInvalidDeliveryTransition = errors.New("invalid delivery status transition")
	ErrTooManyProducts           = errors.New("too many products for plan")

	errPeriodPlanned = errors.New("billing period already planned")
)

const scanLockKey = "fulfillment:scan"

// PreferenceCollector gathers a subscriber's selection signals.
type PreferenceCollector interface {
	Collect(ctx context.Context, userID string) (*preference.Signals, error)
}

type Selector interface {
	Select(ctx context.Context, in *selection.Input) ([]*models.Product, error)
}

// ProductResolver maps any product reference to its stored catalog row.
type ProductResolver interface {
	ResolveProduct(ctx context.Context, id string) (*models.Product, error)
}

type SubscriptionResult struct {
	SubscriptionID       string   `json:"subscription_id"`
	SubscriberID         string   `json:"subscriber_id"`
	SelectedProductNames []string `json:"selected_product_names"`
	Success              bool     `json:"success"`
	Error                string   `json:"error,omitempty"`
}

type ScanResult struct {
	ProcessedCount int `json:"processed_count"`
	// SkippedCount counts due subscriptions left to the subscriber's own selection.
	SkippedCount int                   `json:"skipped_count"`
	Aborted      bool                  `json:"aborted"`
	Results      []*SubscriptionResult `json:"per_subscription_results"`
}

type Engine struct {
	repo      Repository
	prefs     PreferenceCollector
	selector  Selector
	catalog   ProductResolver
	locker    lock.Locker
	publisher mq.Publisher
	metrics   *metrics.Recorder
	log       *zap.SugaredLogger

	lookahead     time.Duration
	scanOffset    time.Duration
	billingOffset time.Duration
	scanLockTTL   time.Duration
	now           func() time.Time
}

func NewEngine(
	cfg *config.Config,
	repo Repository,
	prefs PreferenceCollector,
	selector Selector,
	catalog ProductResolver,
	locker lock.Locker,
	publisher mq.Publisher,
	rec *metrics.Recorder,
	log *zap.SugaredLogger,
) *Engine {
	f := cfg.Fulfillment
	ttl := f.ScanLockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Engine{
		repo:          repo,
		prefs:         prefs,
		selector:      selector,
		catalog:       catalog,
		locker:        locker,
		publisher:     publisher,
		metrics:       rec,
		log:           log,
		lookahead:     f.Lookahead(),
		scanOffset:    f.ScanShippingOffset(),
		billingOffset: f.BillingShippingOffset(),
		scanLockTTL:   ttl,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Scan fulfills every ACTIVE subscription due within the lookahead window.
// Subscriptions that prefer custom selection are skipped. Each subscription
// is committed on its own, so one failure never affects the others. A
// cancelled context stops the batch before the next subscription and the
// partial result is returned with Aborted set.
func (e *Engine) Scan(ctx context.Context) (*ScanResult, error) {
	defer e.metrics.ObserveScan(time.Now())
	log := logctx.FromCtx(ctx, e.log)

	release, err := e.locker.Acquire(ctx, scanLockKey, e.scanLockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrScanInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warnw("failed to release scan lock", "error", err)
		}
	}()

	now := e.now()
	subs, err := e.repo.ListDueSubscriptions(ctx, now.Add(e.lookahead))
	if err != nil {
		return nil, err
	}
	log.Infow("fulfillment scan started", "due", len(subs))

	result := &ScanResult{Results: make([]*SubscriptionResult, 0, len(subs))}
	for _, sub := range subs {
		if ctx.Err() != nil {
			result.Aborted = true
			log.Warnw("fulfillment scan aborted", "processed", result.ProcessedCount, "error", ctx.Err())
			break
		}
		if sub.PreferCustomSelection {
			result.SkippedCount++
			continue
		}
		result.Results = append(result.Results, e.fulfill(ctx, sub, types.DeliveryTriggerScan))
		result.ProcessedCount++
	}

	log.Infow("fulfillment scan finished",
		"processed", result.ProcessedCount, "skipped", result.SkippedCount, "aborted", result.Aborted)
	return result, nil
}

// FulfillByProviderSubscription fulfills the cycle paid by a billing event.
// A subscription that is not ACTIVE yields a failed result, not an error.
func (e *Engine) FulfillByProviderSubscription(ctx context.Context, providerSubscriptionID string) (*SubscriptionResult, error) {
	sub, err := e.repo.GetSubscriptionByProviderID(ctx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}
	if !sub.Active() {
		logctx.FromCtx(ctx, e.log).Infow("billing fulfillment ignored",
			"subscription_id", sub.ID, "status", sub.Status)
		e.metrics.FulfillmentResult(string(types.DeliveryTriggerBilling), false)
		return &SubscriptionResult{
			SubscriptionID:       sub.ID,
			SubscriberID:         sub.UserID,
			SelectedProductNames: []string{},
			Error:                ErrSubscriptionNotActive.Error(),
		}, nil
	}
	return e.fulfill(ctx, sub, types.DeliveryTriggerBilling), nil
}

func (e *Engine) fulfill(ctx context.Context, sub *models.Subscription, trigger types.DeliveryTrigger) *SubscriptionResult {
	res := &SubscriptionResult{
		SubscriptionID:       sub.ID,
		SubscriberID:         sub.UserID,
		SelectedProductNames: []string{},
	}
	names, err := e.fulfillCycle(ctx, sub, trigger)
	e.metrics.FulfillmentResult(string(trigger), err == nil)
	if err != nil {
		logctx.FromCtx(ctx, e.log).Warnw("subscription fulfillment failed",
			"subscription_id", sub.ID, "user_id", sub.UserID, "trigger", trigger, "error", err)
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.SelectedProductNames = names
	return res
}

func (e *Engine) offset(trigger types.DeliveryTrigger) time.Duration {
	if trigger == types.DeliveryTriggerBilling {
		return e.billingOffset
	}
	return e.scanOffset
}

// cycleKey is the key of the cycle currently due; an unscheduled subscription is due today.
func (e *Engine) cycleKey(sub *models.Subscription, now time.Time) string {
	if key := sub.CycleKey(); key != "" {
		return key
	}
	return now.UTC().Format(models.CycleKeyLayout)
}

func (e *Engine) fulfillCycle(ctx context.Context, sub *models.Subscription, trigger types.DeliveryTrigger) ([]string, error) {
	now := e.now()
	if trigger == types.DeliveryTriggerBilling && sub.PeriodPlanned(now) {
		return e.confirmPlanned(ctx, sub, trigger)
	}
	key := e.cycleKey(sub, now)

	existing, err := e.repo.CycleDeliveries(ctx, sub.ID, key)
	if err != nil {
		return nil, err
	}
	for _, d := range existing {
		if !d.CustomSelected {
			return nil, ErrCycleAlreadyScheduled
		}
	}

	cycleDate := now
	if sub.NextDeliveryDate != nil {
		cycleDate = *sub.NextDeliveryDate
	}
	plan := &CyclePlan{
		SubscriptionID:   sub.ID,
		ExpectedDate:     sub.NextDeliveryDate,
		CycleKey:         key,
		CycleDate:        cycleDate,
		NextDeliveryDate: sub.NextCycleDate(now),
		Trigger:          trigger,
	}
	if trigger == types.DeliveryTriggerBilling {
		plan.BilledAt = &now
	}

	var names []string
	if len(existing) > 0 || sub.PreferCustomSelection {
		// the subscriber's picks stand in for auto-selection
		for _, d := range existing {
			names = append(names, d.ProductName)
		}
	} else {
		products, err := e.autoSelect(ctx, sub)
		if err != nil {
			return nil, err
		}
		shipAt := now.Add(e.offset(trigger))
		for i, p := range products {
			productID := p.ID
			plan.Deliveries = append(plan.Deliveries, &models.SubscriptionDelivery{
				ID:             tool.GenerateUUIDV7(),
				SubscriptionID: sub.ID,
				UserID:         sub.UserID,
				ProductID:      &productID,
				ProductName:    p.Name,
				Status:         types.DeliveryStatusProcessing,
				ShippingDate:   shipAt,
				CycleKey:       key,
				Slot:           i,
				Trigger:        trigger,
			})
			names = append(names, p.Name)
		}
	}

	updated, err := e.repo.ScheduleCycle(ctx, plan)
	if errors.Is(err, errPeriodPlanned) {
		current, err := e.repo.GetSubscription(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		return e.confirmPlanned(ctx, current, trigger)
	}
	if err != nil {
		return nil, err
	}

	e.metrics.DeliveriesScheduled(string(trigger), len(plan.Deliveries))
	e.publishScheduled(ctx, updated, plan, names)
	logctx.FromCtx(ctx, e.log).Infow("delivery cycle scheduled",
		"subscription_id", sub.ID, "cycle_key", key, "trigger", trigger,
		"products", names, "next_delivery_date", updated.NextDeliveryDate)

	if names == nil {
		names = []string{}
	}
	return names, nil
}

// confirmPlanned reports the cycle already planned for the current billing period
// without writing anything.
func (e *Engine) confirmPlanned(ctx context.Context, sub *models.Subscription, trigger types.DeliveryTrigger) ([]string, error) {
	key := sub.LastCycleDate.UTC().Format(models.CycleKeyLayout)
	deliveries, err := e.repo.CycleDeliveries(ctx, sub.ID, key)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		names = append(names, d.ProductName)
	}
	logctx.FromCtx(ctx, e.log).Infow("delivery cycle already planned for billing period",
		"subscription_id", sub.ID, "cycle_key", key, "trigger", trigger, "products", names)
	return names, nil
}

func (e *Engine) autoSelect(ctx context.Context, sub *models.Subscription) ([]*models.Product, error) {
	signals, err := e.prefs.Collect(ctx, sub.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to collect preferences: %w", err)
	}
	in := &selection.Input{
		Favorites:  signals.Favorites,
		Purchases:  signals.Purchases,
		Excluded:   signals.Excluded,
		K:          sub.Plan().Items(),
		Preference: sub.DeliveryPreference,
	}
	if sub.DeliveryPreference == types.DeliveryPreferenceSame && sub.ProductID != nil {
		designated, err := e.catalog.ResolveProduct(ctx, *sub.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve designated product: %w", err)
		}
		in.Designated = designated
	}
	products, err := e.selector.Select(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to select products: %w", err)
	}
	return products, nil
}

func (e *Engine) publishScheduled(ctx context.Context, sub *models.Subscription, plan *CyclePlan, names []string) {
	ids := make([]string, 0, len(plan.Deliveries))
	for _, d := range plan.Deliveries {
		ids = append(ids, d.ID)
	}
	evt := &mq.DeliveryScheduledEvent{
		SubscriptionID:   sub.ID,
		UserID:           sub.UserID,
		CycleKey:         plan.CycleKey,
		Trigger:          string(plan.Trigger),
		DeliveryIDs:      ids,
		ProductNames:     names,
		NextDeliveryDate: sub.NextDeliveryDate,
		OccurredAt:       e.now(),
	}
	if err := e.publisher.Publish(ctx, mq.RoutingKeyDeliveryScheduled, evt); err != nil {
		logctx.FromCtx(ctx, e.log).Warnw("failed to publish delivery scheduled event",
			"subscription_id", sub.ID, "error", err)
	}
}
