package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/testutil/pgtest"
)

func TestGormRepository_CreateProductIsIdempotent(t *testing.T) {
	repo := NewRepository(pgtest.StartupPostgreSQL(t))
	ctx := context.Background()

	brand, err := repo.EnsureBrand(ctx, models.UnknownBrandCMSID, "Unknown")
	require.NoError(t, err)
	again, err := repo.EnsureBrand(ctx, models.UnknownBrandCMSID, "Unknown")
	require.NoError(t, err)
	require.Equal(t, brand.ID, again.ID)

	first, err := repo.CreateProduct(ctx, &models.Product{CMSID: "cms-1", BrandID: brand.ID, Name: "One", Published: true})
	require.NoError(t, err)
	second, err := repo.CreateProduct(ctx, &models.Product{CMSID: "cms-1", BrandID: brand.ID, Name: "Dup"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "One", second.Name)
}

func TestGormRepository_PopularProducts(t *testing.T) {
	repo := NewRepository(pgtest.StartupPostgreSQL(t))
	ctx := context.Background()
	brand, err := repo.EnsureBrand(ctx, "b", "B")
	require.NoError(t, err)

	mk := func(cmsID, name string, reviews int64, published, placeholder bool) *models.Product {
		p, err := repo.CreateProduct(ctx, &models.Product{
			CMSID: cmsID, BrandID: brand.ID, Name: name, ReviewCount: reviews, Published: published, Placeholder: placeholder,
		})
		require.NoError(t, err)
		return p
	}
	d := mk("d", "D", 50, true, false)
	e := mk("e", "E", 40, true, false)
	x := mk("x", "X", 90, true, false)
	mk("hidden", "Hidden", 99, false, false)
	mk("ph", "Placeholder", 99, true, true)

	got, err := repo.PopularProducts(ctx, []string{x.ID}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, d.ID, got[0].ID)
	require.Equal(t, e.ID, got[1].ID)
}
