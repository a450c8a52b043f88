// Package storage defines the narrow port the access gateway and the
// consistency auditor use to reach the underlying storage engine.
//
// Rows are untyped column maps: the gateway authorizes on tenant_id and id
// only and never interprets business columns.
package storage

import (
	"context"
	"fmt"
	"reflect"

	"tenantguard/internal/schema"
)

// Row is one record keyed by column name.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the row's id column rendered as a string, or "" when absent.
func (r Row) ID() string {
	return StringValue(r[schema.ColumnID])
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	// OpIsNull matches rows whose column is NULL; Value is ignored.
	OpIsNull Op = "is_null"
)

func (o Op) IsValid() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpIsNull:
		return true
	}
	return false
}

// Condition compares one column against a value. OpIn expects a slice value.
type Condition struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value,omitempty"`
}

// Filter is a conjunction of conditions.
type Filter []Condition

func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

func In(column string, values ...any) Condition {
	return Condition{Column: column, Op: OpIn, Value: values}
}

func IsNull(column string) Condition {
	return Condition{Column: column, Op: OpIsNull}
}

// And returns a new filter with extra conditions appended; f is not modified.
func (f Filter) And(extra ...Condition) Filter {
	out := make(Filter, 0, len(f)+len(extra))
	out = append(out, f...)
	return append(out, extra...)
}

// Validate checks operators and column identifiers.
func (f Filter) Validate() error {
	for _, c := range f {
		if !schema.IsValidIdentifier(c.Column) {
			return fmt.Errorf("invalid filter column %q", c.Column)
		}
		if !c.Op.IsValid() {
			return fmt.Errorf("invalid filter operator %q on %s", c.Op, c.Column)
		}
		if c.Op == OpIn {
			if _, ok := SliceValues(c.Value); !ok {
				return fmt.Errorf("operator in on %s requires a list value", c.Column)
			}
		}
	}
	return nil
}

// PinnedIDs reports whether the filter targets specific rows by id (eq or in
// on the id column) and returns those ids.
func (f Filter) PinnedIDs() ([]any, bool) {
	for _, c := range f {
		if c.Column != schema.ColumnID {
			continue
		}
		switch c.Op {
		case OpEq:
			return []any{c.Value}, true
		case OpIn:
			values, _ := SliceValues(c.Value)
			return values, true
		}
	}
	return nil, false
}

// References reports whether any condition mentions column.
func (f Filter) References(column string) bool {
	for _, c := range f {
		if c.Column == column {
			return true
		}
	}
	return false
}

// LiveRows selects the rows of t that belong to tenantID and, for soft-delete
// tables, are still active. Quota counts use it.
func LiveRows(t *schema.Table, tenantID string) Filter {
	f := Filter{Eq(schema.ColumnTenantID, tenantID)}
	if t.SoftDelete {
		f = append(f, Eq(schema.ColumnIsActive, true))
	}
	return f
}

// Order sorts results by Column.
type Order struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// Query is a read against one table. Limit 0 means no limit.
type Query struct {
	Table   string
	Filter  Filter
	OrderBy []Order
	Limit   int
	Offset  int
}

// Engine is the storage engine port.
type Engine interface {
	Query(ctx context.Context, q Query) ([]Row, error)
	// Insert stores row and returns it as persisted (generated id included).
	Insert(ctx context.Context, table string, row Row) (Row, error)
	// Update applies patch to every row matching filter and returns the updated rows.
	Update(ctx context.Context, table string, filter Filter, patch Row) ([]Row, error)
	// Delete removes every row matching filter and returns how many were removed.
	Delete(ctx context.Context, table string, filter Filter) (int, error)
	Count(ctx context.Context, table string, filter Filter) (int, error)
}

// Transactor is implemented by engines that can run several calls atomically.
// Calls made with the context passed to fn join the transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StringValue renders scalar column values (strings, UUIDs, byte arrays) as strings.
// nil renders as "".
func StringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// SliceValues flattens any slice value into []any.
func SliceValues(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if values, ok := v.([]any); ok {
		return values, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// [16]byte is a UUID, not a list.
	if rv.Kind() == reflect.Array && rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
