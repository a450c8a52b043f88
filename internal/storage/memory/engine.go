// Package memory is an in-process storage.Engine used by tests and by the
// server when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantguard/internal/schema"
	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
)

// Engine keeps rows per table in insertion order.
type Engine struct {
	mu     sync.RWMutex
	tables map[string][]storage.Row

	// txMu serializes RunInTx callers; plain calls are not blocked by it.
	txMu sync.Mutex
}

func New() *Engine {
	return &Engine{tables: make(map[string][]storage.Row)}
}

func (e *Engine) Query(_ context.Context, q storage.Query) ([]storage.Row, error) {
	if err := q.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrInvalidInput, err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []storage.Row
	for _, row := range e.tables[q.Table] {
		if matches(row, q.Filter) {
			out = append(out, row.Clone())
		}
	}
	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c, _ := compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (e *Engine) Insert(_ context.Context, table string, row storage.Row) (storage.Row, error) {
	stored := row.Clone()
	if stored == nil {
		stored = storage.Row{}
	}
	if stored.ID() == "" {
		stored[schema.ColumnID] = uuid.NewString()
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.tables[table] {
		if existing.ID() == stored.ID() {
			return nil, fmt.Errorf("%s id %s: %w", table, stored.ID(), sentinel.ErrAlreadyUsed)
		}
	}
	e.tables[table] = append(e.tables[table], stored)
	return stored.Clone(), nil
}

func (e *Engine) Update(_ context.Context, table string, filter storage.Filter, patch storage.Row) ([]storage.Row, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrInvalidInput, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var updated []storage.Row
	for i, row := range e.tables[table] {
		if !matches(row, filter) {
			continue
		}
		next := row.Clone()
		for k, v := range patch {
			next[k] = v
		}
		e.tables[table][i] = next
		updated = append(updated, next.Clone())
	}
	return updated, nil
}

func (e *Engine) Delete(_ context.Context, table string, filter storage.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", sentinel.ErrInvalidInput, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := e.tables[table]
	kept := rows[:0:0]
	removed := 0
	for _, row := range rows {
		if matches(row, filter) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	e.tables[table] = kept
	return removed, nil
}

func (e *Engine) Count(_ context.Context, table string, filter storage.Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", sentinel.ErrInvalidInput, err)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := 0
	for _, row := range e.tables[table] {
		if matches(row, filter) {
			n++
		}
	}
	return n, nil
}

type txKey struct{}

// RunInTx runs fn with all-or-nothing semantics: when fn fails, every table
// is restored to its state before the call. Writes made concurrently outside
// the transaction are lost on rollback. Nested calls join the outer one.
func (e *Engine) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(txKey{}).(*Engine); ok && owner == e {
		return fn(ctx)
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()

	snapshot := e.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, e)); err != nil {
		e.mu.Lock()
		e.tables = snapshot
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *Engine) snapshot() map[string][]storage.Row {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]storage.Row, len(e.tables))
	for name, rows := range e.tables {
		copied := make([]storage.Row, len(rows))
		for i, r := range rows {
			copied[i] = r.Clone()
		}
		out[name] = copied
	}
	return out
}

func matches(row storage.Row, filter storage.Filter) bool {
	for _, c := range filter {
		if !matchCondition(row[c.Column], c) {
			return false
		}
	}
	return true
}

func matchCondition(v any, c storage.Condition) bool {
	switch c.Op {
	case storage.OpIsNull:
		return v == nil
	case storage.OpIn:
		values, _ := storage.SliceValues(c.Value)
		for _, candidate := range values {
			if cmp, ok := compare(v, candidate); ok && cmp == 0 {
				return true
			}
		}
		return false
	}
	// SQL semantics: NULL compares false against anything.
	if v == nil || c.Value == nil {
		return false
	}
	cmp, ok := compare(v, c.Value)
	if !ok {
		return c.Op == storage.OpNeq
	}
	switch c.Op {
	case storage.OpEq:
		return cmp == 0
	case storage.OpNeq:
		return cmp != 0
	case storage.OpGt:
		return cmp > 0
	case storage.OpGte:
		return cmp >= 0
	case storage.OpLt:
		return cmp < 0
	case storage.OpLte:
		return cmp <= 0
	}
	return false
}

// compare orders two column values. ok is false when the values are not comparable.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Compare(bt), true
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			if ab == bb {
				return 0, true
			}
			if !ab {
				return -1, true
			}
			return 1, true
		}
		return 0, false
	}
	return strings.Compare(storage.StringValue(a), storage.StringValue(b)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
