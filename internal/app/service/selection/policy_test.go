package selection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/types"
)

// rankedCatalog returns its products in order, skipping excluded ones.
type rankedCatalog struct {
	ranked    []*models.Product
	err       error
	lastLimit int
}

func (c *rankedCatalog) PopularProducts(_ context.Context, exclude []string, limit int) ([]*models.Product, error) {
	c.lastLimit = limit
	if c.err != nil {
		return nil, c.err
	}
	skip := types.NewIDSet(exclude...)
	var out []*models.Product
	for _, p := range c.ranked {
		if len(out) == limit {
			break
		}
		if !skip.Has(p.ID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func products(ids ...string) []*models.Product {
	out := make([]*models.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.Product{ID: id, Name: id})
	}
	return out
}

func ids(ps []*models.Product) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestSelect_FavoritesMinusExcludedThenPopularity(t *testing.T) {
	policy := NewPolicy(&rankedCatalog{ranked: products("D", "E")})

	got, err := policy.Select(context.Background(), &Input{
		Favorites: products("A", "B", "C"),
		Excluded:  types.NewIDSet("B"),
		K:         3,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "C", "D"}, ids(got))
}

func TestSelect_NoFavoritesTakesTopPopular(t *testing.T) {
	policy := NewPolicy(&rankedCatalog{ranked: products("X", "Y", "Z")})

	got, err := policy.Select(context.Background(), &Input{K: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"X", "Y"}, ids(got))
}

func TestSelect_NonPositiveKIsEmpty(t *testing.T) {
	cat := &rankedCatalog{ranked: products("X")}
	policy := NewPolicy(cat)

	for _, k := range []int{0, -1} {
		got, err := policy.Select(context.Background(), &Input{Favorites: products("A"), K: k})
		require.NoError(t, err)
		require.Empty(t, got)
	}
	require.Zero(t, cat.lastLimit)
}

func TestSelect_EverythingExcludedIsEmptyNotError(t *testing.T) {
	policy := NewPolicy(&rankedCatalog{ranked: products("A", "B")})

	got, err := policy.Select(context.Background(), &Input{
		Favorites: products("A"),
		Excluded:  types.NewIDSet("A", "B"),
		K:         2,
	})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSelect_SizeBoundedAndDisjointFromExclusion(t *testing.T) {
	catalog := products("P1", "P2", "P3", "F2", "P4", "P5")
	excluded := types.NewIDSet("F2", "P1", "P4")
	favorites := products("F1", "F2", "F3", "F1")

	for k := 0; k <= 8; k++ {
		for _, pref := range []types.DeliveryPreference{
			types.DeliveryPreferenceFromFavorites, types.DeliveryPreferenceCuratorRecommended, types.DeliveryPreferenceSame,
		} {
			got, err := NewPolicy(&rankedCatalog{ranked: catalog}).Select(context.Background(), &Input{
				Favorites:  favorites,
				Purchases:  products("P2"),
				Excluded:   excluded,
				K:          k,
				Preference: pref,
				Designated: &models.Product{ID: "P1"},
			})
			require.NoError(t, err)
			require.LessOrEqual(t, len(got), k)
			seen := types.NewIDSet()
			for _, p := range got {
				require.False(t, excluded.Has(p.ID), "k=%d pref=%s picked excluded %s", k, pref, p.ID)
				require.False(t, seen.Has(p.ID), "k=%d pref=%s duplicate %s", k, pref, p.ID)
				seen.Add(p.ID)
			}
		}
	}
}

func TestSelect_PurchasedProductsFillLast(t *testing.T) {
	cat := &rankedCatalog{ranked: products("X", "Y", "Z")}
	got, err := NewPolicy(cat).Select(context.Background(), &Input{
		Purchases: products("X"),
		K:         2,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Y", "Z"}, ids(got))
	require.Equal(t, 3, cat.lastLimit)

	got, err = NewPolicy(&rankedCatalog{ranked: products("X", "Y")}).Select(context.Background(), &Input{
		Purchases: products("X"),
		K:         2,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Y", "X"}, ids(got))
}

func TestSelect_Preferences(t *testing.T) {
	ctx := context.Background()
	cat := &rankedCatalog{ranked: products("X", "Y")}

	got, err := NewPolicy(cat).Select(ctx, &Input{
		Favorites:  products("A"),
		K:          2,
		Preference: types.DeliveryPreferenceCuratorRecommended,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"X", "Y"}, ids(got))

	got, err = NewPolicy(cat).Select(ctx, &Input{
		Favorites:  products("A"),
		K:          1,
		Preference: types.DeliveryPreferenceSame,
		Designated: &models.Product{ID: "S"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"S"}, ids(got))

	got, err = NewPolicy(cat).Select(ctx, &Input{
		Favorites:  products("A"),
		K:          1,
		Preference: types.DeliveryPreferenceSame,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, ids(got))
}

func TestSelect_PopularityErrorPropagates(t *testing.T) {
	_, err := NewPolicy(&rankedCatalog{err: errors.New("boom")}).Select(context.Background(), &Input{K: 1})
	require.Error(t, err)
}
