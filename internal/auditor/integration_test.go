//go:build integration

package auditor_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"tenantguard/internal/auditor"
	"tenantguard/internal/auditor/review"
	"tenantguard/internal/directory/models"
	"tenantguard/internal/directory/service"
	tenantstore "tenantguard/internal/directory/store/tenant"
	userstore "tenantguard/internal/directory/store/user"
	"tenantguard/internal/schema"
	"tenantguard/internal/storage"
	pgengine "tenantguard/internal/storage/postgres"
	"tenantguard/pkg/platform/audit"
	"tenantguard/pkg/platform/audit/publisher"
	auditpostgres "tenantguard/pkg/platform/audit/store/postgres"
	"tenantguard/pkg/testutil/containers"
)

// PostgresAuditorSuite runs a scan and every repair strategy against the
// migrated schema.
//
// Justification: reference columns carry no foreign keys on purpose, so the
// only proof that the auditor finds and fixes dangling and mismatched rows
// in production is a run against real tables.
type PostgresAuditorSuite struct {
	suite.Suite
	ctx     context.Context
	pg      *containers.PostgresContainer
	pool    *pgxpool.Pool
	engine  *pgengine.Engine
	events  *auditpostgres.Store
	auditor *auditor.Auditor
	tenants *service.Service

	schoolA *models.Tenant
	schoolB *models.Tenant
}

func TestPostgresAuditorSuite(t *testing.T) {
	suite.Run(t, new(PostgresAuditorSuite))
}

func (s *PostgresAuditorSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	pool, err := pgxpool.New(s.ctx, s.pg.DSN)
	s.Require().NoError(err)
	s.pool = pool
	s.engine = pgengine.New(pool)
}

func (s *PostgresAuditorSuite) TearDownSuite() {
	s.pool.Close()
}

func (s *PostgresAuditorSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateModuleTables(s.ctx))

	directory := service.New(tenantstore.NewPostgres(s.pg.DB), userstore.NewPostgres(s.pg.DB))
	s.tenants = directory
	s.events = auditpostgres.New(s.pg.DB)
	emitter := publisher.NewPublisher(s.events)
	s.auditor = auditor.New(s.engine, schema.Default(), nil, directory, review.NewPostgres(s.pg.DB),
		auditor.WithAuditEmitter(emitter),
	)

	var err error
	s.schoolA, err = directory.CreateTenant(s.ctx, service.CreateTenantCommand{Name: "North School"})
	s.Require().NoError(err)
	s.schoolB, err = directory.CreateTenant(s.ctx, service.CreateTenantCommand{Name: "South School"})
	s.Require().NoError(err)
}

func (s *PostgresAuditorSuite) insert(table string, row storage.Row) storage.Row {
	stored, err := s.engine.Insert(s.ctx, table, row)
	s.Require().NoError(err)
	return stored
}

func (s *PostgresAuditorSuite) find(list []auditor.Anomaly, kind auditor.Kind) auditor.Anomaly {
	for _, a := range list {
		if a.Kind == kind {
			return a
		}
	}
	s.FailNow("anomaly not found", "kind %s", kind)
	return auditor.Anomaly{}
}

func (s *PostgresAuditorSuite) TestScanAndRepair() {
	a, b := s.schoolA.ID.String(), s.schoolB.ID.String()
	student := s.insert("students", storage.Row{"tenant_id": a, "full_name": "Ada"})
	discount := s.insert("student_discounts", storage.Row{"tenant_id": b, "student_id": student.ID()})
	mark := s.insert("marks", storage.Row{"tenant_id": nil, "student_id": student.ID()})
	recipient := s.insert("notification_recipients", storage.Row{"tenant_id": a, "notification_id": uuid.NewString()})

	found, err := s.auditor.Scan(s.ctx, auditor.AllTenants())
	s.Require().NoError(err)
	s.Require().Len(found, 3)

	s.Run("mismatch is re-stamped with the referenced tenant", func() {
		anomaly := s.find(found, auditor.KindCrossEntityMismatch)
		s.Equal(discount.ID(), anomaly.RowID)

		target := s.schoolA.ID
		out, err := s.auditor.Repair(s.ctx, anomaly, auditor.StrategyAssignDefaultTenant, auditor.RepairOptions{TargetTenantID: &target, Actor: "ops"})
		s.Require().NoError(err)
		s.True(out.Applied)
		s.Equal(1, out.RowsAffected)

		rows, err := s.engine.Query(s.ctx, storage.Query{Table: "student_discounts", Filter: storage.Filter{storage.Eq("id", discount.ID())}})
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		s.Equal(a, rows[0]["tenant_id"])
	})

	s.Run("null tenant row goes to the review queue once", func() {
		anomaly := s.find(found, auditor.KindNullTenant)
		s.Equal(mark.ID(), anomaly.RowID)

		first, err := s.auditor.Repair(s.ctx, anomaly, auditor.StrategyFlagForReview, auditor.RepairOptions{Actor: "ops", Note: "check with school"})
		s.Require().NoError(err)
		s.True(first.Applied)
		s.NotEmpty(first.ReviewItemID)

		second, err := s.auditor.Repair(s.ctx, anomaly, auditor.StrategyFlagForReview, auditor.RepairOptions{Actor: "ops"})
		s.Require().NoError(err)
		s.False(second.Applied)
		s.Equal(first.ReviewItemID, second.ReviewItemID)
	})

	s.Run("orphaned reference is deleted", func() {
		anomaly := s.find(found, auditor.KindOrphanedForeignKey)
		s.Equal(recipient.ID(), anomaly.RowID)

		out, err := s.auditor.Repair(s.ctx, anomaly, auditor.StrategyDeleteOrphan, auditor.RepairOptions{Actor: "ops"})
		s.Require().NoError(err)
		s.True(out.Applied)

		n, err := s.engine.Count(s.ctx, "notification_recipients", storage.Filter{storage.Eq("id", recipient.ID())})
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("rescan reports only the flagged row", func() {
		again, err := s.auditor.Scan(s.ctx, auditor.AllTenants())
		s.Require().NoError(err)
		s.Require().Len(again, 1)
		s.Equal(auditor.KindNullTenant, again[0].Kind)
	})

	s.Run("repairs are in the audit trail", func() {
		events, err := s.events.ListRecent(s.ctx, 100)
		s.Require().NoError(err)
		actions := map[string]int{}
		for _, e := range events {
			actions[e.Action]++
		}
		s.Equal(2, actions[string(audit.EventAnomalyRepaired)])
		s.Equal(1, actions[string(audit.EventAnomalyFlagged)])
	})
}

func (s *PostgresAuditorSuite) TestTenantReferences() {
	ghost := uuid.NewString()
	stray := s.insert("classes", storage.Row{"tenant_id": ghost, "class_name": "7C"})
	parked := s.insert("teachers", storage.Row{"tenant_id": s.schoolB.ID.String(), "name": "Grace"})
	_, err := s.tenants.DeactivateTenant(s.ctx, s.schoolB.ID)
	s.Require().NoError(err)

	found, err := s.auditor.Scan(s.ctx, auditor.AllTenants())
	s.Require().NoError(err)
	s.Require().Len(found, 2)

	orphan := s.find(found, auditor.KindOrphanedForeignKey)
	s.Equal(stray.ID(), orphan.RowID)
	s.Equal(auditor.TenantsTable, orphan.RefTable)
	s.Equal(ghost, orphan.RefRowID)

	inactive := s.find(found, auditor.KindInactiveTenant)
	s.Equal(parked.ID(), inactive.RowID)
	s.Equal(string(models.TenantStatusInactive), inactive.TenantStatus)

	target := s.schoolA.ID
	for _, an := range found {
		out, err := s.auditor.Repair(s.ctx, an, auditor.StrategyAssignDefaultTenant, auditor.RepairOptions{TargetTenantID: &target, Actor: "ops"})
		s.Require().NoError(err)
		s.True(out.Applied)
	}

	again, err := s.auditor.Scan(s.ctx, auditor.AllTenants())
	s.Require().NoError(err)
	s.Empty(again)
}
