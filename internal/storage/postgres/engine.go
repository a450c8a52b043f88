// Package postgres implements storage.Engine on a pgx connection pool.
//
// Table and column names are validated against the identifier pattern and
// quoted with pgx.Identifier; values always travel as bind parameters.
// Tenant isolation is enforced by the gateway's filters, not by the database.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenantguard/internal/schema"
	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txKey struct{}

// Engine is a storage.Engine and storage.Transactor backed by pgxpool.
type Engine struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Engine {
	return &Engine{pool: pool}
}

func (e *Engine) Query(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	table, err := ident(q.Table)
	if err != nil {
		return nil, err
	}
	where, args, err := buildWhere(q.Filter, 1)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(table)
	sb.WriteString(where)
	if len(q.OrderBy) > 0 {
		parts := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			col, err := ident(o.Column)
			if err != nil {
				return nil, err
			}
			if o.Descending {
				col += " DESC"
			}
			parts = append(parts, col)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}

	var out []storage.Row
	err = e.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, sb.String(), args...)
		if err != nil {
			return err
		}
		out, err = collect(rows)
		return err
	})
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return out, nil
}

func (e *Engine) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	tbl, err := ident(table)
	if err != nil {
		return nil, err
	}
	cols := sortedColumns(row)

	var sql string
	args := make([]any, 0, len(cols))
	if len(cols) == 0 {
		sql = "INSERT INTO " + tbl + " DEFAULT VALUES RETURNING *"
	} else {
		quoted := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		for i, c := range cols {
			q, err := ident(c)
			if err != nil {
				return nil, err
			}
			quoted[i] = q
			placeholders[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, bindValue(row[c]))
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			tbl, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	}

	var out []storage.Row
	err = e.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		out, err = collect(rows)
		return err
	})
	if err != nil {
		return nil, mapPostgresError(err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("insert into %s returned %d rows", table, len(out))
	}
	return out[0], nil
}

func (e *Engine) Update(ctx context.Context, table string, filter storage.Filter, patch storage.Row) ([]storage.Row, error) {
	tbl, err := ident(table)
	if err != nil {
		return nil, err
	}
	cols := sortedColumns(patch)
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: empty update", sentinel.ErrInvalidInput)
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filter))
	for i, c := range cols {
		q, err := ident(c)
		if err != nil {
			return nil, err
		}
		sets[i] = fmt.Sprintf("%s = $%d", q, i+1)
		args = append(args, bindValue(patch[c]))
	}
	where, whereArgs, err := buildWhere(filter, len(args)+1)
	if err != nil {
		return nil, err
	}
	args = append(args, whereArgs...)
	sql := "UPDATE " + tbl + " SET " + strings.Join(sets, ", ") + where + " RETURNING *"

	var out []storage.Row
	err = e.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		out, err = collect(rows)
		return err
	})
	if err != nil {
		return nil, mapPostgresError(err)
	}
	return out, nil
}

func (e *Engine) Delete(ctx context.Context, table string, filter storage.Filter) (int, error) {
	tbl, err := ident(table)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = e.run(ctx, func(db querier) error {
		tag, err := db.Exec(ctx, "DELETE FROM "+tbl+where, args...)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return int(affected), nil
}

func (e *Engine) Count(ctx context.Context, table string, filter storage.Filter) (int, error) {
	tbl, err := ident(table)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filter, 1)
	if err != nil {
		return 0, err
	}

	var n int64
	err = e.run(ctx, func(db querier) error {
		return db.QueryRow(ctx, "SELECT count(*) FROM "+tbl+where, args...).Scan(&n)
	})
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return int(n), nil
}

// RunInTx runs fn in one transaction. Nested calls join the outer transaction.
func (e *Engine) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	err := pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	return mapPostgresError(err)
}

// run sends one statement through the caller's transaction, or the pool.
func (e *Engine) run(ctx context.Context, fn func(db querier) error) error {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(tx)
	}
	return fn(e.pool)
}

func buildWhere(filter storage.Filter, start int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	if err := filter.Validate(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", sentinel.ErrInvalidInput, err)
	}

	clauses := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	n := start
	for _, c := range filter {
		col := pgx.Identifier{c.Column}.Sanitize()
		switch c.Op {
		case storage.OpIsNull:
			clauses = append(clauses, col+" IS NULL")
			continue
		case storage.OpIn:
			values, _ := storage.SliceValues(c.Value)
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d)", col, n))
			args = append(args, bindList(values))
		default:
			clauses = append(clauses, fmt.Sprintf("%s %s $%d", col, sqlOperator(c.Op), n))
			args = append(args, bindValue(c.Value))
		}
		n++
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func sqlOperator(op storage.Op) string {
	switch op {
	case storage.OpNeq:
		return "<>"
	case storage.OpGt:
		return ">"
	case storage.OpGte:
		return ">="
	case storage.OpLt:
		return "<"
	case storage.OpLte:
		return "<="
	default:
		return "="
	}
}

func ident(name string) (string, error) {
	if !schema.IsValidIdentifier(name) {
		return "", fmt.Errorf("%w: invalid identifier %q", sentinel.ErrInvalidInput, name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

func sortedColumns(row storage.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func bindValue(v any) any {
	if u, ok := v.(uuid.UUID); ok {
		return u.String()
	}
	return v
}

// bindList turns homogeneous string lists into []string so pgx can encode them
// as a typed array; mixed lists are passed through.
func bindList(values []any) any {
	strs := make([]string, 0, len(values))
	for _, v := range values {
		switch t := bindValue(v).(type) {
		case string:
			strs = append(strs, t)
		default:
			return values
		}
	}
	return strs
}

func collect(rows pgx.Rows) ([]storage.Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Row, len(maps))
	for i, m := range maps {
		row := make(storage.Row, len(m))
		for k, v := range m {
			row[k] = normalize(v)
		}
		out[i] = row
	}
	return out, nil
}

// normalize converts driver-specific values into the plain types the memory
// engine also produces, so callers compare ids as strings in both cases.
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}
