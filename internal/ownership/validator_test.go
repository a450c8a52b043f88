package ownership

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	ownershipmetrics "tenantguard/internal/ownership/metrics"
	id "tenantguard/pkg/domain"
	dErrors "tenantguard/pkg/domain-errors"
)

// ValidatorSuite tests row ownership decisions.
//
// Justification: Every gateway call funnels through Authorize. The properties
// "a row is reachable only from its own tenant" and "NULL tenant rows are
// unreachable to users" are what keep schools isolated.
type ValidatorSuite struct {
	suite.Suite
	logBuf    *bytes.Buffer
	metrics   *ownershipmetrics.Metrics
	validator *Validator
	ctx       context.Context
	schoolA   id.TenantID
	schoolB   id.TenantID
	user      Principal
}

func TestValidatorSuite(t *testing.T) {
	suite.Run(t, new(ValidatorSuite))
}

func (s *ValidatorSuite) SetupTest() {
	s.logBuf = &bytes.Buffer{}
	s.metrics = ownershipmetrics.NewWith(prometheus.NewRegistry())
	s.validator = New(
		WithLogger(slog.New(slog.NewJSONHandler(s.logBuf, nil))),
		WithMetrics(s.metrics),
	)
	s.ctx = context.Background()
	s.schoolA = id.TenantID(uuid.New())
	s.schoolB = id.TenantID(uuid.New())
	s.user = User(id.UserID(uuid.New()))
}

func (s *ValidatorSuite) TestSameTenantAllowedForEveryOperation() {
	for _, op := range []Operation{OpRead, OpCreate, OpUpdate, OpDelete} {
		d := s.validator.Authorize(s.ctx, s.user, &s.schoolA, op, Known(s.schoolA))
		s.True(d.Allowed, op)
		s.Equal(ReasonAllowed, d.Reason)
		s.NoError(d.Err())
	}
}

// TestMismatchProperty checks that for generated pairs of distinct tenants
// every operation is denied with TenantMismatch.
func (s *ValidatorSuite) TestMismatchProperty() {
	for range 50 {
		a := id.TenantID(uuid.New())
		b := id.TenantID(uuid.New())
		for _, op := range []Operation{OpRead, OpCreate, OpUpdate, OpDelete} {
			d := s.validator.Authorize(s.ctx, s.user, &a, op, Known(b))
			s.Require().False(d.Allowed)
			s.Require().Equal(ReasonTenantMismatch, d.Reason)
			s.Require().True(dErrors.HasCode(d.Err(), dErrors.CodeTenantMismatch))
			s.Require().Equal(b, *d.TargetTenantID)
		}
	}
}

func (s *ValidatorSuite) TestNullTenantDeniedForUsers() {
	for _, op := range []Operation{OpRead, OpCreate, OpUpdate, OpDelete} {
		d := s.validator.Authorize(s.ctx, s.user, &s.schoolA, op, Null())
		s.False(d.Allowed)
		s.Equal(ReasonNullTenant, d.Reason)
		s.True(dErrors.HasCode(d.Err(), dErrors.CodeNullTenant))
	}
}

func (s *ValidatorSuite) TestUnparsableTenantIsMismatch() {
	d := s.validator.Authorize(s.ctx, s.user, &s.schoolA, OpRead, FromValue("school-A"))
	s.False(d.Allowed)
	s.Equal(ReasonTenantMismatch, d.Reason)
	s.Nil(d.TargetTenantID)
}

func (s *ValidatorSuite) TestNoResolvedTenant() {
	d := s.validator.Authorize(s.ctx, s.user, nil, OpRead, Known(s.schoolA))
	s.False(d.Allowed)
	s.Equal(ReasonTenantNotAssigned, d.Reason)
	s.True(dErrors.IsAuthorizationFailure(d.Err()))
}

func (s *ValidatorSuite) TestMaintenancePrincipal() {
	s.Run("cross-tenant access allowed and logged", func() {
		janitor := Maintenance("consistency-auditor")
		d := s.validator.Authorize(s.ctx, janitor, nil, OpUpdate, Known(s.schoolB))

		s.True(d.Allowed)
		s.Contains(s.logBuf.String(), `"event":"maintenance_cross_tenant_access"`)
		s.Contains(s.logBuf.String(), `"log_type":"audit"`)
		s.Contains(s.logBuf.String(), "maintenance:consistency-auditor")
		s.Equal(1.0, testutil.ToFloat64(s.metrics.MaintenanceAccess))
	})

	s.Run("null tenant rows are reachable for repair", func() {
		d := s.validator.Authorize(s.ctx, Maintenance("repair"), nil, OpUpdate, Null())
		s.True(d.Allowed)
	})

	s.Run("same-tenant access is not logged as cross-tenant", func() {
		s.logBuf.Reset()
		d := s.validator.Authorize(s.ctx, Maintenance("scoped"), &s.schoolA, OpRead, Known(s.schoolA))
		s.True(d.Allowed)
		s.Empty(s.logBuf.String())
	})
}

func (s *ValidatorSuite) TestDecisionMetrics() {
	s.validator.Authorize(s.ctx, s.user, &s.schoolA, OpRead, Known(s.schoolB))
	s.validator.Authorize(s.ctx, s.user, &s.schoolA, OpRead, Known(s.schoolB))
	s.validator.Authorize(s.ctx, s.user, &s.schoolA, OpDelete, Known(s.schoolA))

	s.Equal(2.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("read", "tenant_mismatch")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("delete", "allowed")))
}

func (s *ValidatorSuite) TestFromValue() {
	raw := uuid.New()
	s.True(FromValue(nil).IsNull())
	s.True(FromValue("").IsNull())
	s.True(FromValue("not-a-uuid").IsUnparsable())
	s.True(FromValue(42).IsUnparsable())

	got, ok := FromValue(raw.String()).TenantID()
	s.True(ok)
	s.Equal(id.TenantID(raw), got)

	got, ok = FromValue(raw).TenantID()
	s.True(ok)
	s.Equal(id.TenantID(raw), got)
}

func (s *ValidatorSuite) TestDeniedBy() {
	d := DeniedBy(ReasonResolutionTimeout, nil)
	s.False(d.Allowed)
	s.True(dErrors.HasCode(d.Err(), dErrors.CodeResolutionTimeout))

	d = DeniedBy(ReasonTenantInactive, &s.schoolA)
	s.True(dErrors.HasCode(d.Err(), dErrors.CodeTenantInactive))
	s.Equal(s.schoolA, *d.ResolvedTenantID)
}
