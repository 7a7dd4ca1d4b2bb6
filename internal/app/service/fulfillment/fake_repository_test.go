package fulfillment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/types"
)

// memRepo mirrors the transactional checks of gormRepository in memory.
type memRepo struct {
	mu         sync.Mutex
	subs       []*models.Subscription
	deliveries []*models.SubscriptionDelivery
	plans      []*CyclePlan
}

func cloneSub(s *models.Subscription) *models.Subscription {
	c := *s
	if s.NextDeliveryDate != nil {
		d := *s.NextDeliveryDate
		c.NextDeliveryDate = &d
	}
	if s.LastCycleDate != nil {
		d := *s.LastCycleDate
		c.LastCycleDate = &d
	}
	return &c
}

func (r *memRepo) find(id string) *models.Subscription {
	for _, s := range r.subs {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (r *memRepo) ListDueSubscriptions(_ context.Context, until time.Time) ([]*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Subscription
	for _, s := range r.subs {
		if s.Active() && s.NextDeliveryDate != nil && !s.NextDeliveryDate.After(until) {
			out = append(out, cloneSub(s))
		}
	}
	return out, nil
}

func (r *memRepo) GetSubscription(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.find(id); s != nil {
		return cloneSub(s), nil
	}
	return nil, ErrSubscriptionNotFound
}

func (r *memRepo) GetSubscriptionByProviderID(_ context.Context, providerSubscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ProviderSubscriptionID != nil && *s.ProviderSubscriptionID == providerSubscriptionID {
			return cloneSub(s), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (r *memRepo) cycle(subscriptionID, cycleKey string) []*models.SubscriptionDelivery {
	var out []*models.SubscriptionDelivery
	for _, d := range r.deliveries {
		if d.SubscriptionID == subscriptionID && d.CycleKey == cycleKey {
			out = append(out, d)
		}
	}
	return out
}

func (r *memRepo) CycleDeliveries(_ context.Context, subscriptionID, cycleKey string) ([]*models.SubscriptionDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycle(subscriptionID, cycleKey), nil
}

func (r *memRepo) ScheduleCycle(_ context.Context, plan *CyclePlan) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.find(plan.SubscriptionID)
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	if !sub.Active() {
		return nil, ErrSubscriptionNotActive
	}
	if plan.BilledAt != nil && sub.PeriodPlanned(*plan.BilledAt) {
		return nil, errPeriodPlanned
	}
	if !sameDate(sub.NextDeliveryDate, plan.ExpectedDate) {
		return nil, ErrCycleAlreadyScheduled
	}
	for _, d := range r.cycle(sub.ID, plan.CycleKey) {
		if !d.CustomSelected || len(plan.Deliveries) > 0 {
			return nil, ErrCycleAlreadyScheduled
		}
	}
	r.deliveries = append(r.deliveries, plan.Deliveries...)
	next, cycleDate := plan.NextDeliveryDate, plan.CycleDate
	sub.NextDeliveryDate = &next
	sub.LastCycleDate = &cycleDate
	r.plans = append(r.plans, plan)
	return cloneSub(sub), nil
}

func (r *memRepo) ReplaceCustomSelection(_ context.Context, subscriptionID, cycleKey string, deliveries []*models.SubscriptionDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.cycle(subscriptionID, cycleKey) {
		if !d.CustomSelected {
			return ErrCycleAlreadyScheduled
		}
	}
	var kept []*models.SubscriptionDelivery
	for _, d := range r.deliveries {
		if d.SubscriptionID != subscriptionID || d.CycleKey != cycleKey {
			kept = append(kept, d)
		}
	}
	r.deliveries = append(kept, deliveries...)
	return nil
}

func (r *memRepo) GetDelivery(_ context.Context, id string) (*models.SubscriptionDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deliveries {
		if d.ID == id {
			c := *d
			return &c, nil
		}
	}
	return nil, ErrDeliveryNotFound
}

func (r *memRepo) UpdateDeliveryStatus(_ context.Context, d *models.SubscriptionDelivery, from types.DeliveryStatus, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.deliveries {
		if stored.ID == d.ID {
			if stored.Status != from {
				return ErrInvalidDeliveryTransition
			}
			stored.Status = d.Status
			return nil
		}
	}
	return ErrDeliveryNotFound
}

func (r *memRepo) ScanDeliveries(_ context.Context, _ *types.ScanRequest, userID string) (*types.ScanResponse[*models.SubscriptionDelivery], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []*models.SubscriptionDelivery
	for _, d := range r.deliveries {
		if userID == "" || d.UserID == userID {
			items = append(items, d)
		}
	}
	return &types.ScanResponse[*models.SubscriptionDelivery]{Items: items, Total: int64(len(items))}, nil
}

func (r *memRepo) forSubscription(id string) []*models.SubscriptionDelivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SubscriptionDelivery
	for _, d := range r.deliveries {
		if d.SubscriptionID == id {
			out = append(out, d)
		}
	}
	return out
}

// prefRepo serves favorites per user for the real preference aggregator.
type prefRepo struct {
	favorites map[string][]string
}

func (r *prefRepo) FavoriteProductIDs(_ context.Context, userID string) ([]string, error) {
	return r.favorites[userID], nil
}

func (r *prefRepo) PurchasedProductIDs(context.Context, string) ([]string, error) { return nil, nil }

func (r *prefRepo) RecentDeliveryProductIDs(context.Context, string, int) ([]string, error) {
	return nil, nil
}

// stubCatalog knows products by ID and fails for the IDs in broken.
type stubCatalog struct {
	products map[string]*models.Product
	popular  []*models.Product
	broken   map[string]bool
}

var errCatalogDown = errors.New("catalog lookup failed")

func (c *stubCatalog) ResolveProductID(ctx context.Context, id string) (string, error) {
	p, err := c.ResolveProduct(ctx, id)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (c *stubCatalog) ResolveProduct(_ context.Context, id string) (*models.Product, error) {
	if c.broken[id] {
		return nil, errCatalogDown
	}
	if p, ok := c.products[id]; ok {
		return p, nil
	}
	return &models.Product{ID: id, Name: id, Placeholder: true}, nil
}

func (c *stubCatalog) GetProductsByIDs(_ context.Context, ids []string) ([]*models.Product, error) {
	out := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *stubCatalog) PopularProducts(_ context.Context, exclude []string, limit int) ([]*models.Product, error) {
	skip := types.NewIDSet(exclude...)
	var out []*models.Product
	for _, p := range c.popular {
		if len(out) == limit {
			break
		}
		if !skip.Has(p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, body)
	return nil
}

func (p *recordingPublisher) Close() {}
