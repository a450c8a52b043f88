package auditor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"tenantguard/internal/auditor/review"
	"tenantguard/internal/ownership"
	"tenantguard/internal/schema"
	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/audit"
)

// Repair applies strategy to one anomaly. The anomaly is re-checked against
// current data first; if it no longer holds the outcome is Stale and nothing
// is written. Repairs of the same anomaly are serialized.
func (a *Auditor) Repair(ctx context.Context, anomaly Anomaly, strategy Strategy, opts RepairOptions) (*Outcome, error) {
	if err := a.validateRepair(anomaly, strategy, opts); err != nil {
		a.recordRepair(strategy, "rejected")
		return nil, err
	}

	a.locks.Lock(anomaly.ID)
	defer a.locks.Unlock(anomaly.ID)

	holds, current, err := a.stillHolds(ctx, anomaly)
	if err != nil {
		a.recordRepair(strategy, "error")
		return nil, err
	}
	out := &Outcome{AnomalyID: anomaly.ID, Strategy: strategy, DryRun: opts.DryRun}
	if !holds {
		out.Stale = true
		out.Description = "anomaly no longer present"
		a.recordRepair(strategy, "stale")
		return out, nil
	}

	switch strategy {
	case StrategyAssignDefaultTenant:
		err = a.assignTenant(ctx, anomaly, current, opts, out)
	case StrategyDeleteOrphan:
		err = a.deleteOrphan(ctx, anomaly, opts, out)
	case StrategyFlagForReview:
		err = a.flag(ctx, anomaly, opts, out)
	}
	if err != nil {
		a.recordRepair(strategy, "error")
		return nil, err
	}

	result := "applied"
	if opts.DryRun {
		result = "dry_run"
	}
	a.recordRepair(strategy, result)
	a.logger.InfoContext(ctx, "repair finished",
		"anomaly_id", anomaly.ID,
		"strategy", string(strategy),
		"dry_run", opts.DryRun,
		"rows_affected", out.RowsAffected,
	)
	return out, nil
}

func (a *Auditor) validateRepair(anomaly Anomaly, strategy Strategy, opts RepairOptions) error {
	if anomaly.ID == "" || !anomaly.Kind.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "anomaly id and kind are required")
	}
	if !strategy.Supports(anomaly) {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("strategy %s cannot repair %s", strategy, anomaly.Kind))
	}
	table, ok := a.registry.Table(anomaly.Table)
	if !ok || !table.TenantScoped {
		return dErrors.New(dErrors.CodeValidation, "unknown tenant-scoped table "+anomaly.Table)
	}
	if strategy == StrategyAssignDefaultTenant && (opts.TargetTenantID == nil || opts.TargetTenantID.IsNil()) {
		return dErrors.New(dErrors.CodeValidation, "assign_default_tenant requires an explicit target tenant")
	}
	return nil
}

// stillHolds re-reads the rows an anomaly names. The returned row is the
// anomalous row as currently stored.
func (a *Auditor) stillHolds(ctx context.Context, anomaly Anomaly) (bool, storage.Row, error) {
	row, err := a.loadRow(ctx, anomaly.Table, anomaly.RowID)
	if err != nil || row == nil {
		return false, nil, err
	}
	a.authorizer.Authorize(ctx, a.principal, nil, ownership.OpRead, ownership.FromValue(row[schema.ColumnTenantID]))

	if anomaly.TenantReference() {
		holds, err := a.tenantStillBroken(ctx, anomaly, row)
		return holds, row, err
	}

	switch anomaly.Kind {
	case KindNullTenant:
		return ownership.FromValue(row[schema.ColumnTenantID]).IsNull(), row, nil
	case KindCrossEntityMismatch, KindOrphanedForeignKey:
		if storage.StringValue(row[anomaly.Column]) != anomaly.RefRowID {
			return false, row, nil
		}
		ref, err := a.loadRow(ctx, anomaly.RefTable, anomaly.RefRowID)
		if err != nil {
			return false, nil, err
		}
		if anomaly.Kind == KindOrphanedForeignKey {
			return ref == nil, row, nil
		}
		if ref == nil {
			return false, row, nil
		}
		rowTenant, ok1 := ownership.FromValue(row[schema.ColumnTenantID]).TenantID()
		refTenant, ok2 := ownership.FromValue(ref[schema.ColumnTenantID]).TenantID()
		if ok1 && ok2 && rowTenant != refTenant {
			return true, row, nil
		}
	}
	return false, row, nil
}

// tenantStillBroken re-checks an orphaned or inactive tenant against the
// directory as it is now.
func (a *Auditor) tenantStillBroken(ctx context.Context, anomaly Anomaly, row storage.Row) (bool, error) {
	if storage.StringValue(row[schema.ColumnTenantID]) != anomaly.RefRowID {
		return false, nil
	}
	tid, known := ownership.FromValue(row[schema.ColumnTenantID]).TenantID()
	if !known {
		return anomaly.Kind == KindOrphanedForeignKey, nil
	}
	tenant, err := a.tenants.GetTenant(ctx, tid)
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return anomaly.Kind == KindOrphanedForeignKey, nil
	case err != nil:
		return false, err
	}
	return anomaly.Kind == KindInactiveTenant && !tenant.IsActive(), nil
}

func (a *Auditor) loadRow(ctx context.Context, table, rowID string) (storage.Row, error) {
	rows, err := a.engine.Query(ctx, storage.Query{
		Table:  table,
		Filter: storage.Filter{storage.Eq(schema.ColumnID, rowID)},
		Limit:  1,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load "+table+" row")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// assignTenant stamps the target tenant on the anomalous row. For a mismatch
// the target must be the referenced row's tenant, or the repair would leave
// the mismatch in place.
func (a *Auditor) assignTenant(ctx context.Context, anomaly Anomaly, current storage.Row, opts RepairOptions, out *Outcome) error {
	target := *opts.TargetTenantID
	tenant, err := a.tenants.GetTenant(ctx, target)
	if err != nil {
		return err
	}
	if !tenant.IsActive() {
		return dErrors.New(dErrors.CodeTenantInactive, "target tenant is not active")
	}
	if anomaly.Kind == KindCrossEntityMismatch {
		ref, err := a.loadRow(ctx, anomaly.RefTable, anomaly.RefRowID)
		if err != nil {
			return err
		}
		refTenant, _ := ownership.FromValue(ref[schema.ColumnTenantID]).TenantID()
		if refTenant != target {
			return dErrors.New(dErrors.CodeValidation,
				"target tenant must match the referenced "+anomaly.RefTable+" row")
		}
	}

	from := storage.StringValue(current[schema.ColumnTenantID])
	out.Description = fmt.Sprintf("set %s.%s tenant_id from %q to %s", anomaly.Table, anomaly.RowID, from, target)
	if opts.DryRun {
		out.RowsAffected = 1
		return nil
	}

	// Guard on the value just checked so a concurrent writer is not overwritten.
	guard := storage.Filter{storage.Eq(schema.ColumnID, anomaly.RowID)}
	if from == "" {
		guard = guard.And(storage.IsNull(schema.ColumnTenantID))
	} else {
		guard = guard.And(storage.Eq(schema.ColumnTenantID, from))
	}
	updated, err := a.withRetry(ctx, "assign tenant", func() (int, error) {
		rows, err := a.engine.Update(ctx, anomaly.Table, guard, storage.Row{schema.ColumnTenantID: target.String()})
		return len(rows), err
	})
	if err != nil {
		return err
	}
	out.Applied = updated > 0
	out.RowsAffected = updated
	if updated == 0 {
		out.Stale = true
		return nil
	}
	a.auditRepair(ctx, anomaly, StrategyAssignDefaultTenant, opts, target.String())
	return nil
}

func (a *Auditor) deleteOrphan(ctx context.Context, anomaly Anomaly, opts RepairOptions, out *Outcome) error {
	out.Description = fmt.Sprintf("delete %s.%s referencing missing %s.%s", anomaly.Table, anomaly.RowID, anomaly.RefTable, anomaly.RefRowID)
	if opts.DryRun {
		out.RowsAffected = 1
		return nil
	}
	filter := storage.Filter{
		storage.Eq(schema.ColumnID, anomaly.RowID),
		storage.Eq(anomaly.Column, anomaly.RefRowID),
	}
	deleted, err := a.withRetry(ctx, "delete orphan", func() (int, error) {
		return a.engine.Delete(ctx, anomaly.Table, filter)
	})
	if err != nil {
		return err
	}
	out.Applied = deleted > 0
	out.RowsAffected = deleted
	if deleted > 0 {
		a.auditRepair(ctx, anomaly, StrategyDeleteOrphan, opts, anomaly.TenantID)
	}
	return nil
}

func (a *Auditor) flag(ctx context.Context, anomaly Anomaly, opts RepairOptions, out *Outcome) error {
	out.Description = fmt.Sprintf("queue %s on %s.%s for manual review", anomaly.Kind, anomaly.Table, anomaly.RowID)
	if opts.DryRun {
		return nil
	}
	item := &review.Item{
		AnomalyID: anomaly.ID,
		Kind:      string(anomaly.Kind),
		Table:     anomaly.Table,
		RowID:     anomaly.RowID,
		TenantID:  anomaly.TenantID,
		Detail:    describe(anomaly),
		FlaggedBy: actor(opts),
		Note:      opts.Note,
		Status:    review.StatusOpen,
		CreatedAt: now(ctx),
	}
	stored, created, err := a.review.Flag(ctx, item)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to flag anomaly")
	}
	out.ReviewItemID = stored.ID.String()
	out.Applied = created
	if created {
		a.audit.Log(ctx, string(audit.EventAnomalyFlagged),
			"subject", a.principal.Subject(),
			"actor_id", actor(opts),
			"table", anomaly.Table,
			"tenant_id", anomaly.TenantID,
			"anomaly_id", anomaly.ID,
			"kind", string(anomaly.Kind),
		)
	}
	return nil
}

// withRetry retries transient storage failures. Input and state errors are
// returned at once.
func (a *Auditor) withRetry(ctx context.Context, action string, op func() (int, error)) (int, error) {
	n, err := backoff.Retry(ctx, func() (int, error) {
		n, err := op()
		if err != nil && !transient(err) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	},
		backoff.WithBackOff(a.retry()),
		backoff.WithMaxTries(a.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			a.logger.WarnContext(ctx, "repair write failed, retrying",
				"action", action, "error", err, "wait_ms", wait.Milliseconds())
		}),
	)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to "+action)
	}
	return n, nil
}

func transient(err error) bool {
	switch {
	case errors.Is(err, sentinel.ErrInvalidInput),
		errors.Is(err, sentinel.ErrInvalidState),
		errors.Is(err, sentinel.ErrAlreadyUsed),
		errors.Is(err, sentinel.ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (a *Auditor) auditRepair(ctx context.Context, anomaly Anomaly, strategy Strategy, opts RepairOptions, tenantID string) {
	a.audit.Log(ctx, string(audit.EventAnomalyRepaired),
		"subject", a.principal.Subject(),
		"actor_id", actor(opts),
		"table", anomaly.Table,
		"tenant_id", tenantID,
		"operation", string(strategy),
		"anomaly_id", anomaly.ID,
		"kind", string(anomaly.Kind),
	)
}

func (a *Auditor) recordRepair(strategy Strategy, result string) {
	if a.metrics != nil {
		a.metrics.IncRepair(string(strategy), result)
	}
}

func describe(an Anomaly) string {
	switch {
	case an.Kind == KindNullTenant:
		return fmt.Sprintf("%s.%s has no tenant", an.Table, an.RowID)
	case an.Kind == KindInactiveTenant:
		return fmt.Sprintf("%s.%s belongs to tenant %s which is %s", an.Table, an.RowID, an.RefRowID, an.TenantStatus)
	case an.TenantReference():
		return fmt.Sprintf("%s.%s names tenant %q which is not in the directory", an.Table, an.RowID, an.RefRowID)
	case an.Kind == KindCrossEntityMismatch:
		return fmt.Sprintf("%s.%s (tenant %s) references %s.%s (tenant %s) via %s",
			an.Table, an.RowID, an.TenantID, an.RefTable, an.RefRowID, an.RefTenantID, an.Column)
	default:
		return fmt.Sprintf("%s.%s references missing %s.%s via %s",
			an.Table, an.RowID, an.RefTable, an.RefRowID, an.Column)
	}
}

func actor(opts RepairOptions) string {
	if opts.Actor == "" {
		return principalName
	}
	return opts.Actor
}

// RepairByID rescans scope, then repairs the anomaly with the given ID. An ID
// that the current data no longer produces is not found.
func (a *Auditor) RepairByID(ctx context.Context, scope Scope, anomalyID string, strategy Strategy, opts RepairOptions) (*Outcome, error) {
	found, err := a.Scan(ctx, scope)
	if err != nil {
		return nil, err
	}
	for _, an := range found {
		if an.ID == anomalyID {
			return a.Repair(ctx, an, strategy, opts)
		}
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "anomaly "+anomalyID+" not found in scope "+scope.String())
}
