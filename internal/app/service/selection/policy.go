// Package selection decides which products a subscription cycle ships.
package selection

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/types"
)

// PopularitySource ranks published products by popularity.
type PopularitySource interface {
	PopularProducts(ctx context.Context, exclude []string, limit int) ([]*models.Product, error)
}

type Input struct {
	Favorites []*models.Product
	// Purchases are pushed behind not-yet-bought products when filling by popularity.
	Purchases []*models.Product
	Excluded  types.IDSet
	// K is the number of products the cycle ships.
	K          int
	Preference types.DeliveryPreference
	// Designated is the subscription's product for DeliveryPreferenceSame.
	Designated *models.Product
}

type Policy struct {
	popular PopularitySource
}

func NewPolicy(popular PopularitySource) *Policy {
	return &Policy{popular: popular}
}

// Select returns at most K products, none of them in the exclusion set.
// An empty result is not an error: the cycle simply ships nothing.
func (p *Policy) Select(ctx context.Context, in *Input) ([]*models.Product, error) {
	if in == nil || in.K <= 0 {
		return []*models.Product{}, nil
	}
	excluded := in.Excluded
	if excluded == nil {
		excluded = types.NewIDSet()
	}

	chosen := types.NewIDSet()
	pool := make([]*models.Product, 0, in.K)
	add := func(prod *models.Product) {
		if prod == nil || len(pool) >= in.K || excluded.Has(prod.ID) || chosen.Has(prod.ID) {
			return
		}
		chosen.Add(prod.ID)
		pool = append(pool, prod)
	}

	switch in.Preference {
	case types.DeliveryPreferenceSame:
		add(in.Designated)
		if in.Designated == nil {
			for _, f := range in.Favorites {
				add(f)
			}
		}
	case types.DeliveryPreferenceCuratorRecommended:
		// popularity only
	default:
		for _, f := range in.Favorites {
			add(f)
		}
	}

	need := in.K - len(pool)
	if need <= 0 {
		return pool, nil
	}

	purchased := types.NewIDSet()
	for _, prod := range in.Purchases {
		if prod != nil {
			purchased.Add(prod.ID)
		}
	}
	skip := make([]string, 0, len(excluded)+len(chosen))
	skip = append(skip, excluded.Slice()...)
	skip = append(skip, chosen.Slice()...)

	fill, err := p.popular.PopularProducts(ctx, skip, need+len(purchased))
	if err != nil {
		return nil, fmt.Errorf("failed to load popular products: %w", err)
	}

	fresh := make([]*models.Product, 0, len(fill))
	var bought []*models.Product
	for _, prod := range fill {
		if purchased.Has(prod.ID) {
			bought = append(bought, prod)
		} else {
			fresh = append(fresh, prod)
		}
	}
	for _, prod := range append(fresh, bought...) {
		add(prod)
	}
	return pool, nil
}

// Module exposes the selection policy via Fx.
var Module = fx.Options(
	fx.Provide(NewPolicy),
)
