package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/config"
)

type stubRepo struct {
	favorites []string
	purchases []string
	recent    []string
	gotN      int
}

func (r *stubRepo) FavoriteProductIDs(context.Context, string) ([]string, error) { return r.favorites, nil }
func (r *stubRepo) PurchasedProductIDs(context.Context, string) ([]string, error) {
	return r.purchases, nil
}
func (r *stubRepo) RecentDeliveryProductIDs(_ context.Context, _ string, n int) ([]string, error) {
	r.gotN = n
	return r.recent, nil
}

type stubCatalog struct {
	alias map[string]string
	fail  map[string]bool
}

func (c *stubCatalog) ResolveProductID(_ context.Context, id string) (string, error) {
	if c.fail[id] {
		return "", errors.New("db down")
	}
	if canonical, ok := c.alias[id]; ok {
		return canonical, nil
	}
	return id, nil
}

func (c *stubCatalog) GetProductsByIDs(_ context.Context, ids []string) ([]*models.Product, error) {
	out := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.Product{ID: id, Name: id})
	}
	return out, nil
}

func productIDs(ps []*models.Product) []string {
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestCollect(t *testing.T) {
	repo := &stubRepo{
		favorites: []string{"A", "cms-b", "B", "C"},
		purchases: []string{"P"},
		recent:    []string{"B", "B", "Z"},
	}
	cat := &stubCatalog{alias: map[string]string{"cms-b": "B"}}
	svc := NewService(&config.Config{}, repo, cat, zap.NewNop().Sugar())

	got, err := svc.Collect(context.Background(), "user-1")
	require.NoError(t, err)

	require.Equal(t, []string{"A", "B", "C"}, productIDs(got.Favorites))
	require.Equal(t, []string{"P"}, productIDs(got.Purchases))
	require.Len(t, got.Excluded, 2)
	require.True(t, got.Excluded.Has("B"))
	require.True(t, got.Excluded.Has("Z"))
	require.Equal(t, defaultExclusionWindow, repo.gotN)
}

func TestCollect_UsesConfiguredWindow(t *testing.T) {
	repo := &stubRepo{}
	cfg := &config.Config{Fulfillment: config.FulfillmentConfig{ExclusionWindow: 3}}
	svc := NewService(cfg, repo, &stubCatalog{}, zap.NewNop().Sugar())

	_, err := svc.Collect(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 3, repo.gotN)
}

func TestCollect_CatalogFailurePropagates(t *testing.T) {
	repo := &stubRepo{favorites: []string{"A", "broken"}}
	svc := NewService(&config.Config{}, repo, &stubCatalog{fail: map[string]bool{"broken": true}}, zap.NewNop().Sugar())

	_, err := svc.Collect(context.Background(), "user-1")
	require.Error(t, err)
}
