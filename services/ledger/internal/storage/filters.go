package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// LotFilter selects inventory lots. Nil fields do not constrain the query.
type LotFilter struct {
	CommodityID *uuid.UUID
	Warehouse   *string
	Location    *string
	Quality     *string
	InStockOnly bool
	Limit       int
}

// MovementFilter selects inventory movements, newest first.
type MovementFilter struct {
	LotID         *uuid.UUID
	Kind          *MovementKind
	ReferenceType *ReferenceType
	ReferenceID   *uuid.UUID
	Since         *time.Time
	Limit         int
}

type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends a clause whose single "?" is replaced by the next positional
// parameter.
func (b *whereBuilder) add(clause string, arg any) {
	b.args = append(b.args, arg)
	b.clauses = append(b.clauses, strings.Replace(clause, "?", "$"+strconv.Itoa(len(b.args)), 1))
}

func (b *whereBuilder) addRaw(clause string) {
	b.clauses = append(b.clauses, clause)
}

func (b *whereBuilder) sql() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

func (b *whereBuilder) limit(n int) string {
	b.args = append(b.args, clampLimit(n))
	return " LIMIT $" + strconv.Itoa(len(b.args))
}

func clampLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func (f LotFilter) build() (string, []any) {
	var b whereBuilder
	if f.CommodityID != nil {
		b.add("commodity_id = ?", *f.CommodityID)
	}
	if f.Warehouse != nil {
		b.add("warehouse = ?", *f.Warehouse)
	}
	if f.Location != nil {
		b.add("location = ?", *f.Location)
	}
	if f.Quality != nil {
		b.add("quality = ?", *f.Quality)
	}
	if f.InStockOnly {
		b.addRaw("quantity > 0")
	}
	query := b.sql() + " ORDER BY created_at ASC, id ASC"
	return query, b.args
}

func (f MovementFilter) build() (string, []any) {
	var b whereBuilder
	if f.LotID != nil {
		b.add("lot_id = ?", *f.LotID)
	}
	if f.Kind != nil {
		b.add("kind = ?", string(*f.Kind))
	}
	if f.ReferenceType != nil {
		b.add("reference_type = ?", string(*f.ReferenceType))
	}
	if f.ReferenceID != nil {
		b.add("reference_id = ?", *f.ReferenceID)
	}
	if f.Since != nil {
		b.add("created_at >= ?", *f.Since)
	}
	query := b.sql() + " ORDER BY created_at DESC, id DESC"
	query += b.limit(f.Limit)
	return query, b.args
}
