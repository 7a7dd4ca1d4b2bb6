package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/cms"
	"github.com/fatflowers/scentbox/pkg/logctx"
	"github.com/fatflowers/scentbox/pkg/metrics"
	"github.com/fatflowers/scentbox/pkg/tool"
)

var ErrNotFound = errors.New("product not found")

const unknownBrandName = "Unknown"

// Service resolves product references to canonical local IDs and keeps the
// local product table in step with the content store.
type Service struct {
	repo    Repository
	cms     cms.Client
	log     *zap.SugaredLogger
	metrics *metrics.Recorder
}

func NewService(repo Repository, cmsClient cms.Client, log *zap.SugaredLogger, rec *metrics.Recorder) *Service {
	return &Service{repo: repo, cms: cmsClient, log: log, metrics: rec}
}

// ResolveProductID maps a local ID or a content-store ID to the canonical local ID.
// Unknown external IDs become placeholder products, so the call only fails on
// persistence errors. Repeated calls with the same ID return the same result.
func (s *Service) ResolveProductID(ctx context.Context, id string) (string, error) {
	p, err := s.resolve(ctx, id)
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

// ResolveProduct is ResolveProductID returning the stored row.
func (s *Service) ResolveProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.resolve(ctx, id)
}

func (s *Service) resolve(ctx context.Context, id string) (*models.Product, error) {
	if id == "" {
		return nil, fmt.Errorf("empty product id: %w", ErrNotFound)
	}
	defer s.metrics.ObserveProcess("catalog", "resolve", time.Now())
	log := logctx.FromCtx(ctx, s.log)

	if tool.IsUUID(id) {
		p, err := s.repo.GetProductByID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	p, err := s.repo.GetProductByCMSID(ctx, id)
	switch {
	case err == nil && !p.Placeholder:
		return p, nil
	case err == nil:
		s.refreshPlaceholder(ctx, p)
		return p, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	remote, cmsErr := s.cms.GetProduct(ctx, id)
	if cmsErr != nil {
		if !errors.Is(cmsErr, cms.ErrNotFound) {
			log.Warnw("cms lookup failed, creating placeholder product", "cms_id", id, "err", cmsErr)
		}
		return s.createPlaceholder(ctx, id)
	}
	return s.createFromCMS(ctx, remote)
}

func (s *Service) createFromCMS(ctx context.Context, remote *cms.Product) (*models.Product, error) {
	brand, err := s.ensureBrand(ctx, remote.Brand)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return s.repo.CreateProduct(ctx, &models.Product{
		CMSID:     remote.ID,
		BrandID:   brand.ID,
		Name:      remote.Name,
		Slug:      remote.Slug,
		Published: remote.Published,
		SyncedAt:  &now,
	})
}

func (s *Service) createPlaceholder(ctx context.Context, cmsID string) (*models.Product, error) {
	brand, err := s.repo.EnsureBrand(ctx, models.UnknownBrandCMSID, unknownBrandName)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateProduct(ctx, &models.Product{
		CMSID:       cmsID,
		BrandID:     brand.ID,
		Name:        cmsID,
		Placeholder: true,
	})
}

// refreshPlaceholder retries the content store for a placeholder and updates it in place on success.
func (s *Service) refreshPlaceholder(ctx context.Context, p *models.Product) {
	remote, err := s.cms.GetProduct(ctx, p.CMSID)
	if err != nil {
		return
	}
	brand, err := s.ensureBrand(ctx, remote.Brand)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to ensure brand for placeholder", "cms_id", p.CMSID, "err", err)
		return
	}
	now := time.Now()
	p.BrandID = brand.ID
	p.Brand = nil
	p.Name = remote.Name
	p.Slug = remote.Slug
	p.Published = remote.Published
	p.Placeholder = false
	p.SyncedAt = &now
	if err := s.repo.UpsertProduct(ctx, p); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("failed to refresh placeholder product", "cms_id", p.CMSID, "err", err)
	}
}

func (s *Service) ensureBrand(ctx context.Context, b *cms.Brand) (*models.Brand, error) {
	if b == nil || b.ID == "" {
		return s.repo.EnsureBrand(ctx, models.UnknownBrandCMSID, unknownBrandName)
	}
	return s.repo.EnsureBrand(ctx, b.ID, b.Name)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

// GetProductsByIDs returns products in the order of ids, skipping unknown ones.
func (s *Service) GetProductsByIDs(ctx context.Context, ids []string) ([]*models.Product, error) {
	rows, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*models.Product, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	out := make([]*models.Product, 0, len(rows))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// PopularProducts returns published products by descending review count, skipping exclude.
func (s *Service) PopularProducts(ctx context.Context, exclude []string, limit int) ([]*models.Product, error) {
	return s.repo.PopularProducts(ctx, exclude, limit)
}

type SyncResult struct {
	Fetched  int      `json:"fetched"`
	Upserted int      `json:"upserted"`
	Failed   []string `json:"failed,omitempty"`
}

// SyncCatalog pulls every published content-store product into the local table.
func (s *Service) SyncCatalog(ctx context.Context) (*SyncResult, error) {
	log := logctx.FromCtx(ctx, s.log)
	remote, err := s.cms.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cms products: %w", err)
	}

	res := &SyncResult{Fetched: len(remote)}
	for _, rp := range remote {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		brand, err := s.ensureBrand(ctx, rp.Brand)
		if err != nil {
			return res, err
		}
		now := time.Now()
		if err := s.repo.UpsertProduct(ctx, &models.Product{
			CMSID:     rp.ID,
			BrandID:   brand.ID,
			Name:      rp.Name,
			Slug:      rp.Slug,
			Published: rp.Published,
			SyncedAt:  &now,
		}); err != nil {
			log.Errorw("failed to sync product", "cms_id", rp.ID, "err", err)
			res.Failed = append(res.Failed, rp.ID)
			continue
		}
		res.Upserted++
	}
	log.Infow("catalog synced", "fetched", res.Fetched, "upserted", res.Upserted, "failed", len(res.Failed))
	return res, nil
}
