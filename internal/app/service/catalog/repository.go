package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/pkg/tool"
)

// Repository is the catalog's persistence port.
type Repository interface {
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	GetProductByCMSID(ctx context.Context, cmsID string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]*models.Product, error)
	// EnsureBrand returns the brand keyed by cmsID, creating it when missing.
	EnsureBrand(ctx context.Context, cmsID, name string) (*models.Brand, error)
	// CreateProduct inserts p unless its cms_id already exists and returns the stored row either way.
	CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error)
	// UpsertProduct inserts p or overwrites the content fields of the row with the same cms_id.
	UpsertProduct(ctx context.Context, p *models.Product) error
	PopularProducts(ctx context.Context, exclude []string, limit int) ([]*models.Product, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormRepository) GetProductByCMSID(ctx context.Context, cmsID string) (*models.Product, error) {
	return r.first(ctx, "cms_id = ?", cmsID)
}

func (r *gormRepository) first(ctx context.Context, query string, arg any) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).Preload("Brand").Where(query, arg).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (r *gormRepository) GetProductsByIDs(ctx context.Context, ids []string) ([]*models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	return rows, nil
}

func (r *gormRepository) EnsureBrand(ctx context.Context, cmsID, name string) (*models.Brand, error) {
	b := &models.Brand{ID: tool.GenerateUUIDV7(), CMSID: cmsID, Name: name}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "cms_id"}}, DoNothing: true}).
		Create(b).Error; err != nil {
		return nil, fmt.Errorf("failed to create brand: %w", err)
	}
	var stored models.Brand
	if err := r.db.WithContext(ctx).Where("cms_id = ?", cmsID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load brand: %w", err)
	}
	return &stored, nil
}

func (r *gormRepository) CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error) {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "cms_id"}}, DoNothing: true}).
		Create(p).Error; err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return r.GetProductByCMSID(ctx, p.CMSID)
}

func (r *gormRepository) UpsertProduct(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	if p.SyncedAt == nil {
		now := time.Now()
		p.SyncedAt = &now
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cms_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"brand_id", "name", "slug", "published", "placeholder", "synced_at", "updated_at"}),
		}).
		Create(p).Error
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (r *gormRepository) PopularProducts(ctx context.Context, exclude []string, limit int) ([]*models.Product, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := r.db.WithContext(ctx).
		Where("published = ? AND placeholder = ?", true, false)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}
	var rows []*models.Product
	if err := q.Order("review_count DESC, name ASC, id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list popular products: %w", err)
	}
	return rows, nil
}
