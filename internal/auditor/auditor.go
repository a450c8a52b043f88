// Package auditor finds and repairs tenant consistency violations in stored
// data: rows with no tenant, rows owned by a tenant the directory does not
// know or has deactivated, rows whose tenant differs from a row they
// reference, and references to rows that do not exist.
//
// The auditor reads across tenants as a SystemMaintenance principal and
// never goes through the access gateway.
package auditor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	auditormetrics "tenantguard/internal/auditor/metrics"
	"tenantguard/internal/auditor/review"
	"tenantguard/internal/directory/models"
	"tenantguard/internal/ownership"
	"tenantguard/internal/schema"
	"tenantguard/internal/storage"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/audit"
	platformstrings "tenantguard/pkg/platform/strings"
	platformsync "tenantguard/pkg/platform/sync"
	"tenantguard/pkg/requestcontext"
)

const principalName = "consistency-auditor"

// Authorizer is the row ownership validator. A nil Authorizer passed to New
// is replaced by ownership.New.
type Authorizer interface {
	Authorize(ctx context.Context, principal ownership.Principal, resolved *id.TenantID, op ownership.Operation, entity ownership.EntityTenant) ownership.Decision
}

// TenantLookup reads the tenant directory. Scans list it once; repairs check
// single tenants.
type TenantLookup interface {
	GetTenant(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	ListTenants(ctx context.Context) ([]*models.Tenant, error)
}

// Auditor scans and repairs. Safe for concurrent use.
type Auditor struct {
	engine     storage.Engine
	registry   *schema.Registry
	authorizer Authorizer
	tenants    TenantLookup
	review     review.Queue

	principal   ownership.Principal
	logger      *slog.Logger
	audit       *audit.Logger
	metrics     *auditormetrics.Metrics
	locks       *platformsync.KeyedMutex
	concurrency int
	retry       func() backoff.BackOff
	maxTries    uint
}

type Option func(*Auditor)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(a *Auditor) {
		a.audit = audit.NewLogger(a.logger, emitter)
	}
}

func WithMetrics(m *auditormetrics.Metrics) Option {
	return func(a *Auditor) {
		a.metrics = m
	}
}

// WithConcurrency bounds how many tables are scanned at once. Default 4.
func WithConcurrency(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithRetry replaces the backoff used for storage writes during repair.
func WithRetry(newBackOff func() backoff.BackOff, maxTries uint) Option {
	return func(a *Auditor) {
		if newBackOff != nil {
			a.retry = newBackOff
		}
		if maxTries > 0 {
			a.maxTries = maxTries
		}
	}
}

func New(engine storage.Engine, registry *schema.Registry, authorizer Authorizer, tenants TenantLookup, queue review.Queue, opts ...Option) *Auditor {
	a := &Auditor{
		engine:      engine,
		registry:    registry,
		authorizer:  authorizer,
		tenants:     tenants,
		review:      queue,
		principal:   ownership.Maintenance(principalName),
		logger:      slog.Default(),
		locks:       platformsync.NewKeyedMutex(0),
		concurrency: 4,
		maxTries:    5,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = audit.NewLogger(a.logger, nil)
	}
	if a.authorizer == nil {
		a.authorizer = ownership.New(ownership.WithLogger(a.logger))
	}
	return a
}

// Scan reports every anomaly in scope. It only reads, and the result is
// sorted with content-derived IDs, so scanning unchanged data twice gives
// identical output.
func (a *Auditor) Scan(ctx context.Context, scope Scope) (result []Anomaly, err error) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.ObserveScan(start, err)
			if err == nil && scope.TenantID == nil {
				summary := Summarize(scope, result)
				byKind := map[string]int{}
				for k, n := range summary.ByKind {
					byKind[string(k)] = n
				}
				kinds := make([]string, len(allKinds))
				for i, k := range allKinds {
					kinds[i] = string(k)
				}
				a.metrics.SetAnomalies(byKind, kinds)
			}
		}
	}()

	directory, err := a.loadDirectory(ctx)
	if err != nil {
		return nil, err
	}

	tables := a.registry.TenantScoped()
	perTable := make([][]Anomaly, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, table := range tables {
		g.Go(func() error {
			found, err := a.scanTable(gctx, scope, table, directory)
			if err != nil {
				return fmt.Errorf("scan %s: %w", table.Name, err)
			}
			perTable[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "consistency scan failed")
	}

	var all []Anomaly
	for _, found := range perTable {
		all = append(all, found...)
	}
	sortAnomalies(all)

	a.logger.InfoContext(ctx, "consistency scan finished",
		"scope", scope.String(),
		"anomalies", len(all),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return all, nil
}

// loadDirectory indexes every tenant by id. The directory is small next to
// the school tables, so one read per scan beats a lookup per row.
func (a *Auditor) loadDirectory(ctx context.Context) (map[id.TenantID]*models.Tenant, error) {
	tenants, err := a.tenants.ListTenants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to load tenant directory")
	}
	byID := make(map[id.TenantID]*models.Tenant, len(tenants))
	for _, t := range tenants {
		byID[t.ID] = t
	}
	return byID, nil
}

func (a *Auditor) scanTable(ctx context.Context, scope Scope, table *schema.Table, directory map[id.TenantID]*models.Tenant) ([]Anomaly, error) {
	var filter storage.Filter
	if scope.TenantID != nil {
		filter = storage.Filter{storage.Eq(schema.ColumnTenantID, scope.TenantID.String())}
	}
	rows, err := a.engine.Query(ctx, storage.Query{Table: table.Name, Filter: filter})
	if err != nil {
		return nil, err
	}
	a.authorizeRead(ctx, scope, rows)

	var found []Anomaly
	for _, row := range rows {
		entity := ownership.FromValue(row[schema.ColumnTenantID])
		if entity.IsNull() {
			found = append(found, newAnomaly(Anomaly{Kind: KindNullTenant, Table: table.Name, RowID: row.ID()}))
			continue
		}
		if an, ok := tenantAnomaly(table.Name, row, entity, directory); ok {
			found = append(found, an)
		}
	}

	for _, ref := range table.References {
		refFound, err := a.checkReference(ctx, scope, table, ref, rows)
		if err != nil {
			return nil, err
		}
		found = append(found, refFound...)
	}
	return found, nil
}

// checkReference loads every referenced row in one pass per chunk, across
// all tenants, and compares ownership.
func (a *Auditor) checkReference(ctx context.Context, scope Scope, table *schema.Table, ref schema.Reference, rows []storage.Row) ([]Anomaly, error) {
	targets := make([]string, 0, len(rows))
	for _, row := range rows {
		targets = append(targets, storage.StringValue(row[ref.Column]))
	}
	targets = platformstrings.DedupeAndTrim(targets)
	if len(targets) == 0 {
		return nil, nil
	}
	ids := make([]any, len(targets))
	for i, t := range targets {
		ids[i] = t
	}

	owners := make(map[string]ownership.EntityTenant, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := min(start+lookupChunk, len(ids))
		refRows, err := a.engine.Query(ctx, storage.Query{
			Table:  ref.Table,
			Filter: storage.Filter{storage.In(schema.ColumnID, ids[start:end]...)},
		})
		if err != nil {
			return nil, err
		}
		a.authorizeRead(ctx, scope, refRows)
		for _, r := range refRows {
			owners[r.ID()] = ownership.FromValue(r[schema.ColumnTenantID])
		}
	}

	var found []Anomaly
	for _, row := range rows {
		target := storage.StringValue(row[ref.Column])
		if target == "" {
			continue
		}
		rowTenant := ownership.FromValue(row[schema.ColumnTenantID])
		base := Anomaly{
			Table:    table.Name,
			RowID:    row.ID(),
			TenantID: tenantString(rowTenant),
			Column:   ref.Column,
			RefTable: ref.Table,
			RefRowID: target,
		}
		owner, ok := owners[target]
		if !ok {
			base.Kind = KindOrphanedForeignKey
			found = append(found, newAnomaly(base))
			continue
		}
		rowID, rowKnown := rowTenant.TenantID()
		refID, refKnown := owner.TenantID()
		if rowKnown && refKnown && rowID != refID {
			base.Kind = KindCrossEntityMismatch
			base.RefTenantID = refID.String()
			found = append(found, newAnomaly(base))
		}
	}
	return found, nil
}

// tenantAnomaly checks a non-null tenant_id against the directory. An
// unparsable value or an unknown tenant is an orphan; a known tenant that is
// not active is reported with its status.
func tenantAnomaly(table string, row storage.Row, entity ownership.EntityTenant, directory map[id.TenantID]*models.Tenant) (Anomaly, bool) {
	an := Anomaly{
		Table:    table,
		RowID:    row.ID(),
		TenantID: tenantString(entity),
		Column:   schema.ColumnTenantID,
		RefTable: TenantsTable,
		RefRowID: storage.StringValue(row[schema.ColumnTenantID]),
	}
	tid, known := entity.TenantID()
	tenant := directory[tid]
	switch {
	case !known || tenant == nil:
		an.Kind = KindOrphanedForeignKey
	case !tenant.IsActive():
		an.Kind = KindInactiveTenant
		an.TenantStatus = string(tenant.Status)
	default:
		return Anomaly{}, false
	}
	return newAnomaly(an), true
}

// lookupChunk bounds the id list of one reference lookup.
const lookupChunk = 500

// authorizeRead passes each distinct owning tenant through the validator so
// cross-tenant maintenance reads are logged once per tenant and batch.
func (a *Auditor) authorizeRead(ctx context.Context, scope Scope, rows []storage.Row) {
	seen := map[string]struct{}{}
	for _, row := range rows {
		entity := ownership.FromValue(row[schema.ColumnTenantID])
		key := entity.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		a.authorizer.Authorize(ctx, a.principal, scope.TenantID, ownership.OpRead, entity)
	}
}

func tenantString(e ownership.EntityTenant) string {
	if tid, ok := e.TenantID(); ok {
		return tid.String()
	}
	return ""
}

// now honours a time pinned on the context for tests.
func now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}
