package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/fatflowers/scentbox/internal/models"
	"github.com/fatflowers/scentbox/internal/platform/cms"
	"github.com/fatflowers/scentbox/pkg/tool"
)

// memRepository is an in-memory Repository honoring the cms_id uniqueness of the real tables.
type memRepository struct {
	mu       sync.Mutex
	products map[string]*models.Product
	brands   map[string]*models.Brand
	creates  int
}

func newMemRepository() *memRepository {
	return &memRepository{products: map[string]*models.Product{}, brands: map[string]*models.Brand{}}
}

func (r *memRepository) GetProductByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepository) GetProductByCMSID(_ context.Context, cmsID string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[cmsID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (r *memRepository) GetProductsByIDs(_ context.Context, ids []string) ([]*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Product
	for _, p := range r.products {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (r *memRepository) EnsureBrand(_ context.Context, cmsID, name string) (*models.Brand, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.brands[cmsID]; ok {
		return b, nil
	}
	b := &models.Brand{ID: tool.GenerateUUIDV7(), CMSID: cmsID, Name: name}
	r.brands[cmsID] = b
	return b, nil
}

func (r *memRepository) CreateProduct(_ context.Context, p *models.Product) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.products[p.CMSID]; ok {
		return existing, nil
	}
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	r.creates++
	r.products[p.CMSID] = p
	return p, nil
}

func (r *memRepository) UpsertProduct(_ context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.products[p.CMSID]; ok {
		p.ID = existing.ID
	} else if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	r.products[p.CMSID] = p
	return nil
}

func (r *memRepository) PopularProducts(_ context.Context, exclude []string, limit int) ([]*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	skip := map[string]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	var out []*models.Product
	for _, p := range r.products {
		if p.Published && !p.Placeholder && !skip[p.ID] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReviewCount != out[j].ReviewCount {
			return out[i].ReviewCount > out[j].ReviewCount
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// stubCMS serves products from a map; err, when set, is returned for every call.
type stubCMS struct {
	products map[string]*cms.Product
	err      error
	calls    int
}

func (c *stubCMS) GetProduct(_ context.Context, id string) (*cms.Product, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if p, ok := c.products[id]; ok {
		return p, nil
	}
	return nil, cms.ErrNotFound
}

func (c *stubCMS) ListProducts(context.Context) ([]*cms.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]*cms.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	return out, nil
}
