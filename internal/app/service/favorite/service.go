// Package favorite stores the products a subscriber likes. Favorites are the
// first source of candidates for FROM_FAVORITES shipments.
package favorite

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/db"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/tool"
	"github.com/fatflowers/scentbox/pkg/types"
)

var ErrInvalidRequest = errors.New("invalid favorite request")

var favoriteScanFields = []string{"id", "product_id", "created_at"}

type ProductResolver interface {
	ResolveProductID(ctx context.Context, id string) (string, error)
}

type Service struct {
	db      *gorm.DB
	catalog ProductResolver
	log     *zap.SugaredLogger
}

func NewService(db *gorm.DB, catalog ProductResolver, log *zap.SugaredLogger) *Service {
	return &Service{db: db, catalog: catalog, log: log}
}

func (s *Service) resolve(ctx context.Context, userID, productRef string) (string, error) {
	if userID == "" || productRef == "" {
		return "", fmt.Errorf("%w: user and product are required", ErrInvalidRequest)
	}
	productID, err := s.catalog.ResolveProductID(ctx, productRef)
	if err != nil {
		return "", fmt.Errorf("failed to resolve product: %w", err)
	}
	return productID, nil
}

// Add favorites a product. Adding the same product twice returns the existing row.
func (s *Service) Add(ctx context.Context, userID, productRef string) (*models.Favorite, error) {
	productID, err := s.resolve(ctx, userID, productRef)
	if err != nil {
		return nil, err
	}
	fav := &models.Favorite{ID: tool.GenerateUUIDV7(), UserID: userID, ProductID: productID}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}}, DoNothing: true}).
		Create(fav).Error
	if err != nil {
		return nil, fmt.Errorf("failed to add favorite: %w", err)
	}
	var stored models.Favorite
	if err := s.db.WithContext(ctx).Preload("Product").
		Where("user_id = ? AND product_id = ?", userID, productID).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load favorite: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("favorite added", "user_id", userID, "product_id", productID)
	return &stored, nil
}

// Remove deletes a favorite; removing a product that is not favorited is a no-op.
func (s *Service) Remove(ctx context.Context, userID, productRef string) error {
	productID, err := s.resolve(ctx, userID, productRef)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.Favorite{})
	if res.Error != nil {
		return fmt.Errorf("failed to remove favorite: %w", res.Error)
	}
	logctx.FromCtx(ctx, s.log).Infow("favorite removed", "user_id", userID, "product_id", productID, "rows", res.RowsAffected)
	return nil
}

func (s *Service) List(ctx context.Context, userID string, req *types.ScanRequest) (*types.ScanResponse[*models.Favorite], error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidRequest)
	}
	return db.Scan[models.Favorite](ctx, s.db, req,
		db.AllowFields(favoriteScanFields...),
		db.Scope(clause.Eq{Column: "user_id", Value: userID}),
		db.Preload("Product"))
}

var Module = fx.Options(
	fx.Provide(NewService),
)
