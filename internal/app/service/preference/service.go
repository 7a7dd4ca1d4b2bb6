package preference

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/config"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/types"
)

const defaultExclusionWindow = 5

// Signals is everything the selection policy knows about a subscriber.
type Signals struct {
	Favorites []*models.Product
	Purchases []*models.Product
	// Excluded holds the products shipped in the most recent deliveries.
	Excluded types.IDSet
}

// Repository reads the raw preference rows.
type Repository interface {
	// FavoriteProductIDs returns favorited product IDs, oldest favorite first.
	FavoriteProductIDs(ctx context.Context, userID string) ([]string, error)
	// PurchasedProductIDs returns products of non-refunded purchases, newest first.
	PurchasedProductIDs(ctx context.Context, userID string) ([]string, error)
	// RecentDeliveryProductIDs returns the product of each of the last n deliveries by shipping date.
	RecentDeliveryProductIDs(ctx context.Context, userID string, n int) ([]string, error)
}

// Catalog validates and loads products.
type Catalog interface {
	ResolveProductID(ctx context.Context, id string) (string, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]*models.Product, error)
}

type Service struct {
	repo            Repository
	catalog         Catalog
	exclusionWindow int
	log             *zap.SugaredLogger
}

func NewService(cfg *config.Config, repo Repository, catalog Catalog, log *zap.SugaredLogger) *Service {
	window := cfg.Fulfillment.ExclusionWindow
	if window <= 0 {
		window = defaultExclusionWindow
	}
	return &Service{repo: repo, catalog: catalog, exclusionWindow: window, log: log}
}

// Collect gathers the subscriber's favorites, purchases and exclusion set.
// A favorite that fails catalog validation fails the whole collection.
func (s *Service) Collect(ctx context.Context, userID string) (*Signals, error) {
	favIDs, err := s.repo.FavoriteProductIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorites: %w", err)
	}
	resolved := make([]string, 0, len(favIDs))
	seen := types.NewIDSet()
	for _, id := range favIDs {
		canonical, err := s.catalog.ResolveProductID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to validate favorite %s: %w", id, err)
		}
		if seen.Has(canonical) {
			continue
		}
		seen.Add(canonical)
		resolved = append(resolved, canonical)
	}
	favorites, err := s.catalog.GetProductsByIDs(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to load favorite products: %w", err)
	}

	purchaseIDs, err := s.repo.PurchasedProductIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchases: %w", err)
	}
	purchases, err := s.catalog.GetProductsByIDs(ctx, purchaseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchased products: %w", err)
	}

	recent, err := s.repo.RecentDeliveryProductIDs(ctx, userID, s.exclusionWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent deliveries: %w", err)
	}

	signals := &Signals{
		Favorites: favorites,
		Purchases: purchases,
		Excluded:  types.NewIDSet(recent...),
	}
	logctx.FromCtx(ctx, s.log).Debugw("preference signals collected",
		"user_id", userID, "favorites", len(favorites), "purchases", len(purchases), "excluded", len(signals.Excluded))
	return signals, nil
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FavoriteProductIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Pluck("product_id", &ids).Error
	return ids, err
}

func (r *gormRepository) PurchasedProductIDs(ctx context.Context, userID string) ([]string, error) {
	var rows []struct {
		ProductID string
	}
	err := r.db.WithContext(ctx).Model(&models.Purchase{}).
		Select("product_id, MAX(purchase_at) AS last_purchase_at").
		Where("user_id = ? AND refund_at IS NULL", userID).
		Group("product_id").
		Order("last_purchase_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	return ids, nil
}

func (r *gormRepository) RecentDeliveryProductIDs(ctx context.Context, userID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []*models.SubscriptionDelivery
	err := r.db.WithContext(ctx).
		Select("product_id").
		Where("user_id = ?", userID).
		Order("shipping_date DESC, id DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ProductID != nil {
			ids = append(ids, *row.ProductID)
		}
	}
	return ids, nil
}

// Module exposes the preference aggregator via Fx.
var Module = fx.Options(
	fx.Provide(NewRepository, NewService),
)
