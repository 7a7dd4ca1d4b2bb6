// Package review stores subscriber ratings and keeps Product.ReviewCount, the
// popularity signal used to fill shipments, in step with them.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

var (
	ErrInvalidReview = errors.New("invalid review")
	ErrNotFound      = errors.New("review not found")
)

const maxBodyLength = 4000

var reviewScanFields = []string{"id", "user_id", "rating", "created_at"}

type ProductResolver interface {
	ResolveProductID(ctx context.Context, id string) (string, error)
}

type CreateRequest struct {
	ProductRef string `json:"product_id"`
	Rating     int    `json:"rating"`
	Body       string `json:"body"`
}

func (r *CreateRequest) validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil request", ErrInvalidReview)
	case r.ProductRef == "":
		return fmt.Errorf("%w: product_id is required", ErrInvalidReview)
	case r.Rating < 1 || r.Rating > 5:
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReview)
	case len(r.Body) > maxBodyLength:
		return fmt.Errorf("%w: body is longer than %d bytes", ErrInvalidReview, maxBodyLength)
	}
	return nil
}

type Service struct {
	db      *gorm.DB
	catalog ProductResolver
	log     *zap.SugaredLogger
}

func NewService(db *gorm.DB, catalog ProductResolver, log *zap.SugaredLogger) *Service {
	return &Service{db: db, catalog: catalog, log: log}
}

// Create stores a review and bumps the product's review count in the same transaction.
func (s *Service) Create(ctx context.Context, userID string, req *CreateRequest) (*models.Review, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidReview)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	productID, err := s.catalog.ResolveProductID(ctx, req.ProductRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve product: %w", err)
	}

	review := &models.Review{
		ID:        tool.GenerateUUIDV7(),
		UserID:    userID,
		ProductID: productID,
		Rating:    req.Rating,
		Body:      strings.TrimSpace(req.Body),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(review).Error; err != nil {
			return fmt.Errorf("failed to create review: %w", err)
		}
		return adjustReviewCount(tx, productID, 1)
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("review created", "review_id", review.ID, "product_id", productID, "rating", review.Rating)
	return review, nil
}

// Delete removes the caller's review. Admin calls pass an empty userID.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var review models.Review
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id)
		if userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		if err := q.First(&review).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load review: %w", err)
		}
		if err := tx.Delete(&review).Error; err != nil {
			return fmt.Errorf("failed to delete review: %w", err)
		}
		return adjustReviewCount(tx, review.ProductID, -1)
	})
}

func adjustReviewCount(tx *gorm.DB, productID string, delta int) error {
	err := tx.Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumn("review_count", gorm.Expr("GREATEST(review_count + ?, 0)", delta)).Error
	if err != nil {
		return fmt.Errorf("failed to update review count: %w", err)
	}
	return nil
}

func (s *Service) ListProductReviews(ctx context.Context, productRef string, req *types.ScanRequest) (*types.ScanResponse[*models.Review], error) {
	productID, err := s.catalog.ResolveProductID(ctx, productRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve product: %w", err)
	}
	return db.Scan[models.Review](ctx, s.db, req,
		db.AllowFields(reviewScanFields...),
		db.Scope(clause.Eq{Column: "product_id", Value: productID}))
}

var Module = fx.Options(
	fx.Provide(NewService),
)
