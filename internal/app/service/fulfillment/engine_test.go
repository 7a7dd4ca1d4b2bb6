package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/app/service/preference"
	"github.com/fatflowers/scentbox/internal/app/service/selection"
	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/lock"
	"github.com/fatflowers/scentbox/internal/platform/mq"
	"github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

type harness struct {
	engine  *Engine
	repo    *memRepo
	catalog *stubCatalog
	prefs   *prefRepo
	pub     *recordingPublisher
	locker  *lock.LocalLocker
}

func product(id, name string) *models.Product {
	return &models.Product{ID: id, Name: name, Published: true}
}

func newHarness(subs ...*models.Subscription) *harness {
	cat := &stubCatalog{
		products: map[string]*models.Product{
			"A":  product("A", "Amber Dusk"),
			"B":  product("B", "Bergamot"),
			"P1": product("P1", "Iris Nobile"),
			"P2": product("P2", "Oud Wood"),
		},
		broken: map[string]bool{},
	}
	cat.popular = []*models.Product{cat.products["P1"], cat.products["P2"]}

	cfg := &config.Config{Fulfillment: config.FulfillmentConfig{
		LookaheadDays:             7,
		ExclusionWindow:           5,
		ScanShippingOffsetDays:    3,
		BillingShippingOffsetDays: 7,
	}}
	log := zap.NewNop().Sugar()
	h := &harness{
		repo:    &memRepo{subs: subs},
		catalog: cat,
		prefs:   &prefRepo{favorites: map[string][]string{}},
		pub:     &recordingPublisher{},
		locker:  lock.NewLocalLocker(),
	}
	h.engine = NewEngine(cfg, h.repo,
		preference.NewService(cfg, h.prefs, cat, log),
		selection.NewPolicy(cat),
		cat, h.locker, h.pub, nil, log)
	h.engine.now = func() time.Time { return testNow }
	return h
}

func dueSub(id, userID string, due time.Time) *models.Subscription {
	d := due
	return &models.Subscription{
		ID:                 id,
		UserID:             userID,
		Status:             types.SubscriptionStatusActive,
		PlanID:             "duo-monthly",
		BillingPeriodDays:  30,
		ItemCount:          2,
		DeliveryPreference: types.DeliveryPreferenceFromFavorites,
		NextDeliveryDate:   &d,
		ProviderID:         types.PaymentProviderStripe,
	}
}

func TestScan_FulfillsDueSubscriptions(t *testing.T) {
	due := testNow.Add(-24 * time.Hour)
	h := newHarness(
		dueSub("s1", "u1", due),
		dueSub("s-later", "u2", testNow.Add(10*24*time.Hour)),
	)
	h.prefs.favorites["u1"] = []string{"A"}

	res, err := h.engine.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)
	require.False(t, res.Aborted)
	require.Len(t, res.Results, 1)

	got := res.Results[0]
	assert.True(t, got.Success)
	assert.Equal(t, "s1", got.SubscriptionID)
	assert.Equal(t, "u1", got.SubscriberID)
	assert.Equal(t, []string{"Amber Dusk", "Iris Nobile"}, got.SelectedProductNames)

	deliveries := h.repo.forSubscription("s1")
	require.Len(t, deliveries, 2)
	for i, d := range deliveries {
		assert.Equal(t, types.DeliveryStatusProcessing, d.Status)
		assert.Equal(t, testNow.Add(3*24*time.Hour), d.ShippingDate)
		assert.Equal(t, "2026-03-09", d.CycleKey)
		assert.Equal(t, i, d.Slot)
		assert.Equal(t, types.DeliveryTriggerScan, d.Trigger)
		assert.False(t, d.CustomSelected)
	}

	sub, err := h.repo.GetSubscription(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, due.Add(30*24*time.Hour), *sub.NextDeliveryDate)
	require.Empty(t, h.repo.forSubscription("s-later"))

	require.Equal(t, []string{mq.RoutingKeyDeliveryScheduled}, h.pub.keys)
	evt := h.pub.events[0].(*mq.DeliveryScheduledEvent)
	assert.Equal(t, "2026-03-09", evt.CycleKey)
	assert.Len(t, evt.DeliveryIDs, 2)
}

func TestScan_NeverSelectsCustomSelectionSubscriptions(t *testing.T) {
	custom := dueSub("s-custom", "u1", testNow)
	custom.PreferCustomSelection = true
	h := newHarness(custom, dueSub("s-auto", "u2", testNow))

	res, err := h.engine.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.ProcessedCount)
	require.Equal(t, 1, res.SkippedCount)
	for _, r := range res.Results {
		require.NotEqual(t, "s-custom", r.SubscriptionID)
	}
	require.Empty(t, h.repo.forSubscription("s-custom"))

	sub, err := h.repo.GetSubscription(context.Background(), "s-custom")
	require.NoError(t, err)
	require.Equal(t, testNow, *sub.NextDeliveryDate)
}

func TestScan_FailureIsIsolatedPerSubscription(t *testing.T) {
	h := newHarness(
		dueSub("s1", "u1", testNow),
		dueSub("s2", "u2", testNow.Add(time.Hour)),
		dueSub("s3", "u3", testNow.Add(2*time.Hour)),
	)
	h.prefs.favorites["u1"] = []string{"A"}
	h.prefs.favorites["u2"] = []string{"cms-broken"}
	h.prefs.favorites["u3"] = []string{"B"}
	h.catalog.broken["cms-broken"] = true

	res, err := h.engine.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, res.ProcessedCount)
	require.Len(t, res.Results, 3)

	assert.True(t, res.Results[0].Success)
	assert.False(t, res.Results[1].Success)
	assert.Contains(t, res.Results[1].Error, errCatalogDown.Error())
	assert.Empty(t, res.Results[1].SelectedProductNames)
	assert.True(t, res.Results[2].Success)

	assert.Len(t, h.repo.forSubscription("s1"), 2)
	assert.Empty(t, h.repo.forSubscription("s2"))
	assert.Len(t, h.repo.forSubscription("s3"), 2)

	s2, err := h.repo.GetSubscription(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour), *s2.NextDeliveryDate)
}

func TestScan_EmptySelectionStillAdvancesSchedule(t *testing.T) {
	h := newHarness(dueSub("s1", "u1", testNow))
	h.catalog.popular = nil

	res, err := h.engine.Scan(context.Background())
	require.NoError(t, err)
	require.True(t, res.Results[0].Success)
	require.Equal(t, []string{}, res.Results[0].SelectedProductNames)
	require.Empty(t, h.repo.forSubscription("s1"))

	sub, err := h.repo.GetSubscription(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, testNow.Add(30*24*time.Hour), *sub.NextDeliveryDate)
}

// cancelAfterSelect cancels the scan context once the first selection returns.
type cancelAfterSelect struct {
	inner  Selector
	cancel context.CancelFunc
}

func (s *cancelAfterSelect) Select(ctx context.Context, in *selection.Input) ([]*models.Product, error) {
	defer s.cancel()
	return s.inner.Select(ctx, in)
}

func TestScan_CancelledContextStopsAtSubscriptionBoundary(t *testing.T) {
	h := newHarness(
		dueSub("s1", "u1", testNow),
		dueSub("s2", "u2", testNow.Add(time.Hour)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.engine.selector = &cancelAfterSelect{inner: h.engine.selector, cancel: cancel}

	res, err := h.engine.Scan(ctx)
	require.NoError(t, err)
	require.True(t, res.Aborted)
	require.Equal(t, 1, res.ProcessedCount)
	require.True(t, res.Results[0].Success)
	require.Empty(t, h.repo.forSubscription("s2"))

	// the lock is released even though the scan context is done
	release, err := h.locker.Acquire(context.Background(), scanLockKey, time.Minute)
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestScan_RejectsConcurrentScan(t *testing.T) {
	h := newHarness()
	release, err := h.locker.Acquire(context.Background(), scanLockKey, time.Minute)
	require.NoError(t, err)
	defer release(context.Background())

	_, err = h.engine.Scan(context.Background())
	require.ErrorIs(t, err, ErrScanInProgress)
}

func TestScan_ConfirmsCustomPicksOfTheCycle(t *testing.T) {
	h := newHarness(dueSub("s1", "u1", testNow))
	_, err := h.engine.SelectNextDelivery(context.Background(), "u1", "s1", []string{"B"})
	require.NoError(t, err)

	res, err := h.engine.Scan(context.Background())
	require.NoError(t, err)
	require.True(t, res.Results[0].Success)
	require.Equal(t, []string{"Bergamot"}, res.Results[0].SelectedProductNames)

	deliveries := h.repo.forSubscription("s1")
	require.Len(t, deliveries, 1)
	require.True(t, deliveries[0].CustomSelected)
	require.Equal(t, types.DeliveryTriggerCustom, deliveries[0].Trigger)
}

func TestScan_ExistingAutoDeliveryFailsCycle(t *testing.T) {
	h := newHarness(dueSub("s1", "u1", testNow))
	h.repo.deliveries = append(h.repo.deliveries, &models.SubscriptionDelivery{
		ID: "d0", SubscriptionID: "s1", UserID: "u1", CycleKey: "2026-03-10", Status: types.DeliveryStatusProcessing,
	})

	res, err := h.engine.Scan(context.Background())
	require.NoError(t, err)
	require.False(t, res.Results[0].Success)
	require.Equal(t, ErrCycleAlreadyScheduled.Error(), res.Results[0].Error)
}

func TestScan_SamePreferenceShipsDesignatedProduct(t *testing.T) {
	sub := dueSub("s1", "u1", testNow)
	sub.ItemCount = 1
	sub.DeliveryPreference = types.DeliveryPreferenceSame
	designated := "B"
	sub.ProductID = &designated
	h := newHarness(sub)
	h.prefs.favorites["u1"] = []string{"A"}

	res, err := h.engine.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Bergamot"}, res.Results[0].SelectedProductNames)
}

func TestFulfillByProviderSubscription(t *testing.T) {
	providerID := "sub_123"
	active := dueSub("s1", "u1", testNow.Add(20*24*time.Hour))
	active.ProviderSubscriptionID = &providerID
	canceledID := "sub_456"
	canceled := dueSub("s2", "u2", testNow)
	canceled.Status = types.SubscriptionStatusCanceled
	canceled.ProviderSubscriptionID = &canceledID
	h := newHarness(active, canceled)

	res, err := h.engine.FulfillByProviderSubscription(context.Background(), providerID)
	require.NoError(t, err)
	require.True(t, res.Success)
	deliveries := h.repo.forSubscription("s1")
	require.Len(t, deliveries, 2)
	require.Equal(t, testNow.Add(7*24*time.Hour), deliveries[0].ShippingDate)
	require.Equal(t, types.DeliveryTriggerBilling, deliveries[0].Trigger)

	res, err = h.engine.FulfillByProviderSubscription(context.Background(), canceledID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Empty(t, h.repo.forSubscription("s2"))

	_, err = h.engine.FulfillByProviderSubscription(context.Background(), "sub_missing")
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestFulfillByProviderSubscription_ConfirmsPeriodPlannedByScan(t *testing.T) {
	providerID := "sub_renewing"
	due := testNow.Add(5 * 24 * time.Hour)
	sub := dueSub("s1", "u1", due)
	sub.ProviderSubscriptionID = &providerID
	h := newHarness(sub)
	h.prefs.favorites["u1"] = []string{"A"}
	ctx := context.Background()

	scan, err := h.engine.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, scan.ProcessedCount)
	require.True(t, scan.Results[0].Success)
	planned := scan.Results[0].SelectedProductNames
	require.Len(t, h.repo.forSubscription("s1"), 2)

	// the renewal invoice for the same period is paid on the delivery date
	h.engine.now = func() time.Time { return due }
	res, err := h.engine.FulfillByProviderSubscription(ctx, providerID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, planned, res.SelectedProductNames)
	require.Len(t, h.repo.forSubscription("s1"), 2)
	require.Len(t, h.repo.plans, 1)

	stored, err := h.repo.GetSubscription(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, due.AddDate(0, 0, 30), *stored.NextDeliveryDate)

	// the next period is planned again by billing
	h.engine.now = func() time.Time { return due.AddDate(0, 0, 30) }
	res, err = h.engine.FulfillByProviderSubscription(ctx, providerID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, h.repo.plans, 2)
	require.Len(t, h.repo.forSubscription("s1"), 4)
}

func TestSelectNextDelivery(t *testing.T) {
	h := newHarness(dueSub("s1", "u1", testNow.Add(5*24*time.Hour)))
	ctx := context.Background()

	_, err := h.engine.SelectNextDelivery(ctx, "someone-else", "s1", []string{"A"})
	require.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = h.engine.SelectNextDelivery(ctx, "u1", "s1", []string{"A", "B", "P1"})
	require.ErrorIs(t, err, ErrTooManyProducts)

	picks, err := h.engine.SelectNextDelivery(ctx, "u1", "s1", []string{"A", "A"})
	require.NoError(t, err)
	require.Len(t, picks, 1)
	require.Equal(t, testNow.Add(5*24*time.Hour), picks[0].ShippingDate)

	picks, err = h.engine.SelectNextDelivery(ctx, "u1", "s1", []string{"B", "P2"})
	require.NoError(t, err)
	require.Len(t, picks, 2)

	stored := h.repo.forSubscription("s1")
	require.Len(t, stored, 2)
	require.Equal(t, "Bergamot", stored[0].ProductName)
	require.Equal(t, "Oud Wood", stored[1].ProductName)
}

func TestUpdateDeliveryStatus(t *testing.T) {
	h := newHarness()
	h.repo.deliveries = []*models.SubscriptionDelivery{{
		ID: "d1", SubscriptionID: "s1", UserID: "u1", Status: types.DeliveryStatusProcessing,
	}}
	ctx := context.Background()

	_, err := h.engine.UpdateDeliveryStatus(ctx, "d1", types.DeliveryStatusDelivered)
	require.True(t, errors.Is(err, ErrInvalidDeliveryTransition))

	d, err := h.engine.UpdateDeliveryStatus(ctx, "d1", types.DeliveryStatusShipped)
	require.NoError(t, err)
	require.Equal(t, types.DeliveryStatusShipped, d.Status)
	require.NotNil(t, d.ShippedAt)

	d, err = h.engine.UpdateDeliveryStatus(ctx, "d1", types.DeliveryStatusDelivered)
	require.NoError(t, err)
	require.NotNil(t, d.DeliveredAt)

	_, err = h.engine.UpdateDeliveryStatus(ctx, "d1", types.DeliveryStatusShipped)
	require.ErrorIs(t, err, ErrInvalidDeliveryTransition)

	_, err = h.engine.UpdateDeliveryStatus(ctx, "missing", types.DeliveryStatusShipped)
	require.ErrorIs(t, err, ErrDeliveryNotFound)

	require.Equal(t, []string{mq.RoutingKeyDeliveryStatus, mq.RoutingKeyDeliveryStatus}, h.pub.keys)
}
