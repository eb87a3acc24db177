package option

import (
	"strings"

	"taskmarket-ledger/pkg/db/pagination"
	"taskmarket-ledger/pkg/errutil"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a gorm statement before it executes.
type QueryOption func(*gorm.DB) *gorm.DB

// LockingUpdate adds SELECT ... FOR UPDATE. Dialects without row locks
// (sqlite) drop the clause.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

// WithSortBy orders by SortBy when it is whitelisted in Allow.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if s.SortBy == "" || !s.Allow[s.SortBy] {
			return db
		}
		return db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: s.SortBy},
			Desc:   strings.EqualFold(s.OrderBy, "desc"),
		})
	}
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(conds ...Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		for _, c := range conds {
			col := clause.Column{Name: c.Field}
			switch c.Operator {
			case EQ:
				db = db.Where(clause.Eq{Column: col, Value: c.Value})
			case NEQ:
				db = db.Where(clause.Neq{Column: col, Value: c.Value})
			case GT:
				db = db.Where(clause.Gt{Column: col, Value: c.Value})
			case GTE:
				db = db.Where(clause.Gte{Column: col, Value: c.Value})
			case LT:
				db = db.Where(clause.Lt{Column: col, Value: c.Value})
			case LTE:
				db = db.Where(clause.Lte{Column: col, Value: c.Value})
			case IN:
				db = db.Where(clause.IN{Column: col, Values: toValues(c.Value)})
			}
		}
		return db
	}
}

func toValues(v any) []any {
	switch vs := v.(type) {
	case []any:
		return vs
	case []string:
		out := make([]any, len(vs))
		for i, s := range vs {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// ApplyPagination pages newest-first by id, fetching one extra row so the
// caller can tell whether another page exists. Ids are compared as strings,
// so they must be fixed-width and time ordered (see ledger.Store.NextID).
func ApplyPagination(p pagination.Pagination) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if p.Cursor != "" {
			cursor, err := pagination.DecodeCursor(p.Cursor)
			if err != nil || cursor.ID == "" {
				_ = db.AddError(errutil.BadRequest("invalid cursor", err))
				return db
			}
			db = db.Where(clause.Lt{Column: clause.Column{Name: "id"}, Value: cursor.ID})
		}
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: true}).
			Limit(p.Size() + 1)
	}
}
