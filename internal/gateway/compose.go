package gateway

import (
	"context"
	"errors"

	"tenantguard/internal/ownership"
	"tenantguard/internal/schema"
	"tenantguard/internal/storage"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/validation"
)

// RunInTx runs fn inside one engine transaction. Gateway calls made with the
// context passed to fn commit or roll back together. Engines without
// transactions get CodeInternal; use CreateWithDependents instead.
func (g *Gateway) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, ok := g.engine.(storage.Transactor)
	if !ok {
		return dErrors.New(dErrors.CodeInternal, "storage engine does not support transactions")
	}
	return tx.RunInTx(ctx, fn)
}

// Dependents are child rows created after their parent, each pointing at it
// through LinkColumn (e.g. notification_recipients.notification_id).
type Dependents struct {
	Table      string
	LinkColumn string
	Payloads   []storage.Row
}

// CompositeResult is the parent row and its created children.
type CompositeResult struct {
	Parent   storage.Row
	Children []storage.Row
}

// CreateWithDependents creates parent then every dependent row. On an engine
// with transactions the whole set commits atomically. Otherwise a failed
// child triggers compensating hard deletes of everything created so far, in
// reverse order, and the original error is returned.
func (g *Gateway) CreateWithDependents(ctx context.Context, parent Request, deps Dependents) (*CompositeResult, error) {
	if parent.Operation != ownership.OpCreate {
		return nil, validationErr("parent request must be a create")
	}
	if !schema.IsValidIdentifier(deps.LinkColumn) {
		return nil, validationErr("invalid link column %q", deps.LinkColumn)
	}
	if err := validation.CheckSliceCount("dependents", len(deps.Payloads), validation.MaxDependents); err != nil {
		return nil, err
	}

	if tx, ok := g.engine.(storage.Transactor); ok {
		var out *CompositeResult
		err := tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			out, _, err = g.createChain(ctx, parent, deps)
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	out, created, err := g.createChain(ctx, parent, deps)
	if err != nil {
		if cerr := g.compensate(ctx, parent.SessionToken, created); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}
	return out, nil
}

type createdRow struct {
	table string
	id    string
}

func (g *Gateway) createChain(ctx context.Context, parent Request, deps Dependents) (*CompositeResult, []createdRow, error) {
	var created []createdRow

	res, err := g.Execute(ctx, parent)
	if err != nil {
		return nil, created, err
	}
	parentRow := res.Rows[0]
	created = append(created, createdRow{table: parent.Table, id: parentRow.ID()})

	out := &CompositeResult{Parent: parentRow}
	for _, payload := range deps.Payloads {
		child := payload.Clone()
		if child == nil {
			child = storage.Row{}
		}
		child[deps.LinkColumn] = parentRow.ID()
		res, err := g.Execute(ctx, Request{
			SessionToken: parent.SessionToken,
			Table:        deps.Table,
			Operation:    ownership.OpCreate,
			Payload:      child,
		})
		if err != nil {
			return nil, created, err
		}
		created = append(created, createdRow{table: deps.Table, id: res.Rows[0].ID()})
		out.Children = append(out.Children, res.Rows[0])
	}
	return out, created, nil
}

// compensate removes created rows newest first. Deletes go through Execute
// so they are scoped and authorized like any other call.
func (g *Gateway) compensate(ctx context.Context, token string, created []createdRow) error {
	var errs []error
	for i := len(created) - 1; i >= 0; i-- {
		row := created[i]
		_, err := g.Execute(ctx, Request{
			SessionToken: token,
			Table:        row.table,
			Operation:    ownership.OpDelete,
			Filter:       storage.Filter{storage.Eq(schema.ColumnID, row.id)},
			DeletePolicy: DeleteHard,
		})
		result := "ok"
		if err != nil {
			result = "failed"
			errs = append(errs, dErrors.Wrap(err, dErrors.CodeStorage, "compensation failed for "+row.table))
		}
		if g.metrics != nil {
			g.metrics.IncCompensation(result)
		}
		g.audit.Log(ctx, "compensation_executed",
			"table", row.table,
			"operation", ownership.OpDelete.String(),
			"decision", result,
		)
	}
	return errors.Join(errs...)
}
