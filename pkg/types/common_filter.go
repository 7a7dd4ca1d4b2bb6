package types

import (
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

// CommonFilter is a single admin list filter, e.g. {"field":"status","operator":"eq","values":["ACTIVE"]}.
type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
	Filters  []CommonFilter       `json:"filters"`
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}

	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		// Handle JSON operator fields (containing -> or ->> operators)
		if strings.Contains(f.Field, "->") {
			// Use raw SQL expression for JSON operators
			clause.Expr{SQL: fmt.Sprintf("%s = ?", f.Field), Vars: []interface{}{value}}.Build(builder)
		} else {
			// Use standard equality for regular fields
			clause.Eq{Column: f.Field, Value: value}.Build(builder)
		}
	case CommonFilterOperatorNotEq:
		clause.NotConditions{Exprs: []clause.Expression{clause.Eq{Column: f.Field, Value: value}}}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}

		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, clause.Lte{Column: f.Field, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	default:
		return
	}
}

// Filters combines a list of CommonFilter into a single AND expression.
type Filters []*CommonFilter

func (fs Filters) Build(builder clause.Builder) {
	if len(fs) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(fs))
	for _, f := range fs {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ScanRequest is the paginated/sorted admin list request shared by list endpoints.
type ScanRequest struct {
	Filters   Filters `json:"filters"`
	From      int     `json:"from"`
	Size      int     `json:"size"`
	SortBy    string  `json:"sort_by"`
	SortOrder string  `json:"sort_order"`
}

// Normalize applies the default page size and clamps negative offsets.
func (r *ScanRequest) Normalize() {
	if r.Size <= 0 {
		r.Size = 10
	}
	if r.Size > 500 {
		r.Size = 500
	}
	if r.From < 0 {
		r.From = 0
	}
	if r.SortOrder != "asc" {
		r.SortOrder = "desc"
	}
}

type ScanResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}
