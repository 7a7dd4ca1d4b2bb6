package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/scentbox/pkg/types"
)

var ErrUnknownField = errors.New("unknown filter or sort field")

// ScanOption narrows a Scan query.
type ScanOption func(*scanOptions)

type scanOptions struct {
	allowed  map[string]struct{}
	scope    []clause.Expression
	preloads []string
}

// AllowFields restricts filters and sort_by to the given columns.
func AllowFields(fields ...string) ScanOption {
	return func(o *scanOptions) {
		if o.allowed == nil {
			o.allowed = make(map[string]struct{}, len(fields))
		}
		for _, f := range fields {
			o.allowed[f] = struct{}{}
		}
	}
}

// Scope adds a fixed condition the caller cannot override, e.g. the owning user.
func Scope(expr clause.Expression) ScanOption {
	return func(o *scanOptions) { o.scope = append(o.scope, expr) }
}

func Preload(assoc string) ScanOption {
	return func(o *scanOptions) { o.preloads = append(o.preloads, assoc) }
}

func (o *scanOptions) check(field string) error {
	if o.allowed == nil {
		return nil
	}
	if _, ok := o.allowed[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return nil
}

// Scan implements paginated/admin listing with filters for model T.
func Scan[T any](ctx context.Context, gdb *gorm.DB, req *types.ScanRequest, opts ...ScanOption) (*types.ScanResponse[*T], error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	o := &scanOptions{}
	for _, opt := range opts {
		opt(o)
	}
	for _, f := range req.Filters {
		if err := o.check(f.Field); err != nil {
			return nil, err
		}
	}
	if req.SortBy != "" {
		if err := o.check(req.SortBy); err != nil {
			return nil, err
		}
	}
	req.Normalize()

	tx := gdb.WithContext(ctx).Model(new(T))
	if len(o.scope) > 0 {
		tx = tx.Where(clause.Where{Exprs: o.scope})
	}
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{req.Filters}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"},
		{Column: clause.Column{Name: "id"}, Desc: req.SortOrder != "asc"},
	}})
	for _, p := range o.preloads {
		q = q.Preload(p)
	}

	rows := make([]*T, 0, req.Size)
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	return &types.ScanResponse[*T]{Items: rows, Total: total}, nil
}
