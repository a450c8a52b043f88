// Package gateway is the single path to tenant-scoped tables. Every call
// resolves the caller and their school, then scopes, stamps and re-checks
// rows so a caller can only ever touch their own school's data.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tenantguard/internal/directory/models"
	gatewaymetrics "tenantguard/internal/gateway/metrics"
	"tenantguard/internal/gateway/tracer"
	"tenantguard/internal/identity"
	"tenantguard/internal/ownership"
	"tenantguard/internal/schema"
	"tenantguard/internal/sentinel"
	"tenantguard/internal/storage"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
	"tenantguard/pkg/platform/audit"
	"tenantguard/pkg/requestcontext"
)

// IdentityResolver turns a session token into an identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (*identity.Identity, error)
}

// TenantResolver returns the user's school from the directory. The claimed
// tenant is only compared, never trusted.
type TenantResolver interface {
	ReconcileHint(ctx context.Context, userID id.UserID, claimed *id.TenantID) (*models.Tenant, error)
}

// Authorizer decides whether principal may touch a row owned by entity.
type Authorizer interface {
	Authorize(ctx context.Context, principal ownership.Principal, resolved *id.TenantID, op ownership.Operation, entity ownership.EntityTenant) ownership.Decision
}

// Config holds per-gateway settings.
type Config struct {
	// ResolutionTimeout bounds identity plus tenant resolution. Zero means
	// only the caller's deadline applies.
	ResolutionTimeout time.Duration
}

type Gateway struct {
	cfg        Config
	identities IdentityResolver
	tenants    TenantResolver
	authorizer Authorizer
	engine     storage.Engine
	registry   *schema.Registry

	logger  *slog.Logger
	audit   *audit.Logger
	metrics *gatewaymetrics.Metrics
	tracer  tracer.Tracer
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithAuditEmitter(emitter audit.Emitter) Option {
	return func(g *Gateway) {
		g.audit = audit.NewLogger(g.logger, emitter)
	}
}

func WithMetrics(m *gatewaymetrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = t
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(g *Gateway) {
		g.authorizer = a
	}
}

func New(cfg Config, identities IdentityResolver, tenants TenantResolver, engine storage.Engine, registry *schema.Registry, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:        cfg,
		identities: identities,
		tenants:    tenants,
		engine:     engine,
		registry:   registry,
		logger:     slog.Default(),
		tracer:     tracer.Noop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.audit == nil {
		g.audit = audit.NewLogger(g.logger, nil)
	}
	if g.authorizer == nil {
		g.authorizer = ownership.New(ownership.WithLogger(g.logger))
	}
	return g
}

// caller is the outcome of resolution for one call.
type caller struct {
	principal ownership.Principal
	userID    id.UserID
	tenant    *models.Tenant
	resolved  *id.TenantID
}

// Execute runs one request.
//
// Denials come back as *DeniedError; malformed requests as CodeValidation;
// engine failures as CodeStorage. A denial is never reported as an empty result.
func (g *Gateway) Execute(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gateway.execute",
		tracer.String("table", req.Table),
		tracer.String("operation", req.Operation.String()),
	)
	trail := newTrail()
	defer func() {
		g.observe(req, err, start)
		span.SetAttributes(tracer.String("final_stage", trail.current().String()))
		span.End(err)
	}()

	c, err := g.resolve(ctx, req.SessionToken, trail)
	if err != nil {
		return nil, g.finish(ctx, req, c, trail, err)
	}
	span.AddEvent(StageTenantResolved.String(), tracer.String("tenant_id", c.resolved.String()))

	table, err := g.validate(&req)
	if err != nil {
		return nil, err
	}

	var rows []storage.Row
	var affected int
	switch req.Operation {
	case ownership.OpCreate:
		rows, affected, err = g.create(ctx, c, table, req, trail)
	case ownership.OpRead:
		rows, err = g.read(ctx, c, req, trail)
	case ownership.OpUpdate:
		rows, affected, err = g.update(ctx, c, req, trail)
	case ownership.OpDelete:
		affected, err = g.delete(ctx, c, req, trail)
	}
	if err != nil {
		return nil, g.finish(ctx, req, c, trail, err)
	}

	trail.advance(StageExecuted)
	g.auditDecision(ctx, req, c, ownership.Allow(c.resolved, c.resolved))
	span.SetAttributes(tracer.Int("rows", len(rows)), tracer.Int("affected", affected))
	return &Result{
		Rows:     rows,
		Affected: affected,
		TenantID: *c.resolved,
		UserID:   c.userID,
		Stages:   trail.snapshot(),
	}, nil
}

// resolve runs identity then tenant resolution under ResolutionTimeout.
// Any deadline hit here is a ResolutionTimeout denial.
func (g *Gateway) resolve(parent context.Context, token string, trail *trail) (*caller, error) {
	ctx := parent
	if g.cfg.ResolutionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, g.cfg.ResolutionTimeout)
		defer cancel()
	}

	ident, err := g.identities.ResolveIdentity(ctx, token)
	if err != nil {
		return nil, g.resolutionFailure(ctx, parent, err, nil, trail)
	}
	trail.advance(StageIdentityResolved)
	c := &caller{principal: ownership.User(ident.UserID), userID: ident.UserID}

	tenant, err := g.tenants.ReconcileHint(ctx, ident.UserID, ident.ClaimedTenantID)
	if err != nil {
		var resolved *id.TenantID
		if tenant != nil {
			resolved = id.TenantPtr(tenant.ID)
		}
		return c, g.resolutionFailure(ctx, parent, err, resolved, trail)
	}
	trail.advance(StageTenantResolved)
	c.tenant = tenant
	c.resolved = id.TenantPtr(tenant.ID)
	return c, nil
}

func (g *Gateway) resolutionFailure(ctx, parent context.Context, err error, resolved *id.TenantID, trail *trail) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return g.deny(ownership.DeniedBy(ownership.ReasonResolutionTimeout, resolved), trail)
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return dErrors.Wrap(parent.Err(), dErrors.CodeTimeout, "request canceled")
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnauthorized:
		return g.deny(ownership.DeniedBy(ownership.ReasonUnauthenticated, nil), trail)
	case dErrors.CodeTenantNotAssigned:
		return g.deny(ownership.DeniedBy(ownership.ReasonTenantNotAssigned, nil), trail)
	case dErrors.CodeTenantInactive:
		return g.deny(ownership.DeniedBy(ownership.ReasonTenantInactive, resolved), trail)
	}
	return dErrors.Wrap(err, dErrors.CodeStorage, "tenant resolution failed")
}

func (g *Gateway) deny(decision ownership.Decision, trail *trail) error {
	at := trail.current()
	trail.advance(StageDenied)
	return &DeniedError{Decision: decision, Stage: at, Stages: trail.snapshot()}
}

// authorize runs the validator and moves the trail to Authorized or Denied.
func (g *Gateway) authorize(ctx context.Context, c *caller, op ownership.Operation, rows []storage.Row, trail *trail) error {
	if decision, denied := g.firstDenial(ctx, c, op, rows); denied {
		return g.deny(decision, trail)
	}
	trail.advance(StageAuthorized)
	return nil
}

func (g *Gateway) firstDenial(ctx context.Context, c *caller, op ownership.Operation, rows []storage.Row) (ownership.Decision, bool) {
	for _, row := range rows {
		decision := g.authorizer.Authorize(ctx, c.principal, c.resolved, op, ownership.FromValue(row[schema.ColumnTenantID]))
		if !decision.Allowed {
			return decision, true
		}
	}
	return ownership.Decision{}, false
}

// requestedTenants turns the caller's own tenant_id conditions into the
// tenant values they ask for: eq and in name tenants, is_null names the null
// tenant. Other operators cannot single out a foreign tenant and are left to
// scoping.
func requestedTenants(f storage.Filter) []storage.Row {
	if !f.References(schema.ColumnTenantID) {
		return nil
	}
	var out []storage.Row
	for _, cond := range f {
		if cond.Column != schema.ColumnTenantID {
			continue
		}
		switch cond.Op {
		case storage.OpEq:
			out = append(out, storage.Row{schema.ColumnTenantID: cond.Value})
		case storage.OpIn:
			values, _ := storage.SliceValues(cond.Value)
			for _, v := range values {
				out = append(out, storage.Row{schema.ColumnTenantID: v})
			}
		case storage.OpIsNull:
			out = append(out, storage.Row{schema.ColumnTenantID: nil})
		}
	}
	return out
}

// preauthorize authorizes a call before it reaches the engine. A filter that
// asks for another tenant (or the null tenant) by tenant_id is denied
// outright rather than scoped down to an empty result. Targeted calls are
// then checked against the rows they name, wherever those rows live;
// collection calls only need the resolved tenant.
func (g *Gateway) preauthorize(ctx context.Context, c *caller, req Request, trail *trail) error {
	if decision, denied := g.firstDenial(ctx, c, req.Operation, requestedTenants(req.Filter)); denied {
		return g.deny(decision, trail)
	}
	if _, pinned := req.Filter.PinnedIDs(); !pinned {
		return g.authorize(ctx, c, req.Operation, []storage.Row{{schema.ColumnTenantID: *c.resolved}}, trail)
	}
	targets, err := g.engine.Query(ctx, storage.Query{Table: req.Table, Filter: req.Filter})
	if err != nil {
		return translateEngineErr(err, "load target rows")
	}
	if len(targets) == 0 {
		trail.advance(StageAuthorized)
		return nil
	}
	return g.authorize(ctx, c, req.Operation, targets, trail)
}

// revalidate checks rows coming back from the engine. A foreign row here
// means scoping failed somewhere below the gateway.
func (g *Gateway) revalidate(ctx context.Context, c *caller, req Request, rows []storage.Row, trail *trail) error {
	for _, row := range rows {
		decision := g.authorizer.Authorize(ctx, c.principal, c.resolved, req.Operation, ownership.FromValue(row[schema.ColumnTenantID]))
		if decision.Allowed {
			continue
		}
		if g.metrics != nil {
			g.metrics.IncLeakedRow()
		}
		g.logger.ErrorContext(ctx, "engine returned a row outside the caller's tenant",
			"table", req.Table,
			"operation", req.Operation,
			"tenant_id", c.resolved,
			"row_tenant", ownership.FromValue(row[schema.ColumnTenantID]).String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return g.deny(ownership.Decision{
			Reason:           ownership.ReasonTenantMismatch,
			ResolvedTenantID: c.resolved,
			TargetTenantID:   decision.TargetTenantID,
		}, trail)
	}
	return nil
}

func (g *Gateway) scoped(c *caller, f storage.Filter) storage.Filter {
	return f.And(storage.Eq(schema.ColumnTenantID, c.resolved.String()))
}

func (g *Gateway) create(ctx context.Context, c *caller, table *schema.Table, req Request, trail *trail) ([]storage.Row, int, error) {
	payload := req.Payload.Clone()
	payload[schema.ColumnTenantID] = c.resolved.String()
	if table.SoftDelete {
		if _, ok := payload[schema.ColumnIsActive]; !ok {
			payload[schema.ColumnIsActive] = true
		}
	}
	if err := g.authorize(ctx, c, ownership.OpCreate, []storage.Row{payload}, trail); err != nil {
		return nil, 0, err
	}

	var created storage.Row
	insert := func(ctx context.Context) error {
		if err := g.checkQuota(ctx, c, table); err != nil {
			return err
		}
		row, err := g.engine.Insert(ctx, req.Table, payload)
		if err != nil {
			return translateEngineErr(err, "insert row")
		}
		created = row
		return nil
	}

	var err error
	if tx, ok := g.engine.(storage.Transactor); ok && table.Quota != schema.QuotaNone {
		err = tx.RunInTx(ctx, insert)
	} else {
		err = insert(ctx)
	}
	if err != nil {
		return nil, 0, err
	}
	if err := g.revalidate(ctx, c, req, []storage.Row{created}, trail); err != nil {
		return nil, 0, err
	}
	return []storage.Row{created}, 1, nil
}

// checkQuota enforces the plan limit for tables that count against one.
func (g *Gateway) checkQuota(ctx context.Context, c *caller, table *schema.Table) error {
	if table.Quota == schema.QuotaNone || c.tenant == nil {
		return nil
	}
	limit, ok := c.tenant.Quotas.WithDefaults().Limit(string(table.Quota))
	if !ok {
		return nil
	}
	count, err := g.engine.Count(ctx, table.Name, storage.LiveRows(table, c.resolved.String()))
	if err != nil {
		return translateEngineErr(err, "count rows for quota")
	}
	if count >= limit {
		return dErrors.New(dErrors.CodeQuotaExceeded, "tenant has reached its "+string(table.Quota)+" limit")
	}
	return nil
}

func (g *Gateway) read(ctx context.Context, c *caller, req Request, trail *trail) ([]storage.Row, error) {
	if err := g.preauthorize(ctx, c, req, trail); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultQueryLimit
	}
	rows, err := g.engine.Query(ctx, storage.Query{
		Table:   req.Table,
		Filter:  g.scoped(c, req.Filter),
		OrderBy: req.OrderBy,
		Limit:   limit,
		Offset:  req.Offset,
	})
	if err != nil {
		return nil, translateEngineErr(err, "query rows")
	}
	if err := g.revalidate(ctx, c, req, rows, trail); err != nil {
		return nil, err
	}
	return rows, nil
}

func (g *Gateway) update(ctx context.Context, c *caller, req Request, trail *trail) ([]storage.Row, int, error) {
	if err := g.preauthorize(ctx, c, req, trail); err != nil {
		return nil, 0, err
	}
	patch := req.Payload.Clone()
	patch[schema.ColumnTenantID] = c.resolved.String()

	rows, err := g.engine.Update(ctx, req.Table, g.scoped(c, req.Filter), patch)
	if err != nil {
		return nil, 0, translateEngineErr(err, "update rows")
	}
	if err := g.revalidate(ctx, c, req, rows, trail); err != nil {
		return nil, 0, err
	}
	return rows, len(rows), nil
}

func (g *Gateway) delete(ctx context.Context, c *caller, req Request, trail *trail) (int, error) {
	if err := g.preauthorize(ctx, c, req, trail); err != nil {
		return 0, err
	}
	filter := g.scoped(c, req.Filter)

	if req.DeletePolicy == DeleteSoft {
		rows, err := g.engine.Update(ctx, req.Table, filter, storage.Row{schema.ColumnIsActive: false})
		if err != nil {
			return 0, translateEngineErr(err, "soft delete rows")
		}
		if err := g.revalidate(ctx, c, req, rows, trail); err != nil {
			return 0, err
		}
		return len(rows), nil
	}

	n, err := g.engine.Delete(ctx, req.Table, filter)
	if err != nil {
		return 0, translateEngineErr(err, "delete rows")
	}
	return n, nil
}

const defaultQueryLimit = 1000

func translateEngineErr(err error, action string) error {
	switch {
	case errors.Is(err, sentinel.ErrInvalidInput):
		return dErrors.Wrap(err, dErrors.CodeValidation, action+": invalid input")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, action+": row already exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, action+": not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeStorage, "failed to "+action)
	}
}

// finish records the audit event for a failed call and passes err through.
func (g *Gateway) finish(ctx context.Context, req Request, c *caller, trail *trail, err error) error {
	if denied, ok := AsDenied(err); ok {
		g.auditDecision(ctx, req, c, denied.Decision)
	}
	return err
}

func (g *Gateway) auditDecision(ctx context.Context, req Request, c *caller, d ownership.Decision) {
	decision := "deny"
	if d.Allowed {
		decision = "allow"
	}
	var userID, tenantID string
	if c != nil {
		userID = c.userID.String()
	}
	if d.ResolvedTenantID != nil {
		tenantID = d.ResolvedTenantID.String()
	}
	g.audit.Log(ctx, "access_decision",
		"user_id", userID,
		"tenant_id", tenantID,
		"table", req.Table,
		"operation", req.Operation.String(),
		"decision", decision,
		"reason", string(d.Reason),
	)
}

func (g *Gateway) observe(req Request, err error, start time.Time) {
	if g.metrics == nil {
		return
	}
	outcome := string(ownership.ReasonAllowed)
	if err != nil {
		if denied, ok := AsDenied(err); ok {
			outcome = string(denied.Decision.Reason)
		} else {
			outcome = string(dErrors.CodeOf(err))
		}
	}
	table := req.Table
	if _, ok := g.registry.Table(table); !ok {
		table = "unknown"
	}
	op := req.Operation.String()
	if !req.Operation.IsValid() {
		op = "unknown"
	}
	g.metrics.ObserveRequest(table, op, outcome, start)
}
