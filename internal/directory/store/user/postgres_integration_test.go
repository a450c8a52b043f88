//go:build integration

package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tenantguard/internal/directory/models"
	userstore "tenantguard/internal/directory/store/user"
	"tenantguard/internal/sentinel"
	id "tenantguard/pkg/domain"
	"tenantguard/pkg/testutil/containers"
)

// PostgresUserStoreSuite checks the conditional tenant assignment against
// real rows.
//
// Justification: assignment is a single guarded UPDATE. Its failure
// classification (unknown user, unknown tenant, inactive tenant) runs only
// after the statement matched nothing, which a fake cannot reproduce.
type PostgresUserStoreSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *userstore.PostgresStore
}

func TestPostgresUserStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresUserStoreSuite))
}

func (s *PostgresUserStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = userstore.NewPostgres(s.pg.DB)
}

func (s *PostgresUserStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateModuleTables(s.ctx))
}

func (s *PostgresUserStoreSuite) TestAssignTenantIfActive() {
	now := time.Now().UTC()

	s.Run("moves the user and returns the previous tenant", func() {
		from := s.pg.CreateTestTenant(s.ctx, s.T())
		to := s.pg.CreateTestTenant(s.ctx, s.T())
		userID := s.pg.CreateTestUser(s.ctx, s.T(), from)

		previous, err := s.store.AssignTenantIfActive(s.ctx, userID, to, now)
		s.Require().NoError(err)
		s.Require().NotNil(previous)
		s.Equal(from, *previous)

		u, err := s.store.FindByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(to, *u.TenantID)
	})

	s.Run("first assignment has no previous tenant", func() {
		tenantID := s.pg.CreateTestTenant(s.ctx, s.T())
		u, err := models.NewUser(id.UserID(uuid.New()), "new-"+uuid.NewString()+"@school.test", id.RoleTeacher, now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Create(s.ctx, u))

		previous, err := s.store.AssignTenantIfActive(s.ctx, u.ID, tenantID, now)
		s.Require().NoError(err)
		s.Nil(previous)
	})

	s.Run("inactive tenant is refused and nothing changes", func() {
		home := s.pg.CreateTestTenant(s.ctx, s.T())
		closed := s.pg.CreateTestTenant(s.ctx, s.T())
		_, err := s.pg.Exec(s.ctx, `UPDATE tenants SET status = 'inactive' WHERE id = $1`, uuid.UUID(closed))
		s.Require().NoError(err)
		userID := s.pg.CreateTestUser(s.ctx, s.T(), home)

		_, err = s.store.AssignTenantIfActive(s.ctx, userID, closed, now)
		s.ErrorIs(err, sentinel.ErrInvalidState)

		u, err := s.store.FindByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(home, *u.TenantID)
	})

	s.Run("waits for a concurrent deactivation and then refuses", func() {
		home := s.pg.CreateTestTenant(s.ctx, s.T())
		closing := s.pg.CreateTestTenant(s.ctx, s.T())
		userID := s.pg.CreateTestUser(s.ctx, s.T(), home)

		tx, err := s.pg.DB.BeginTx(s.ctx, nil)
		s.Require().NoError(err)
		_, err = tx.ExecContext(s.ctx, `UPDATE tenants SET status = 'inactive' WHERE id = $1`, uuid.UUID(closing))
		s.Require().NoError(err)

		done := make(chan error, 1)
		go func() {
			_, err := s.store.AssignTenantIfActive(s.ctx, userID, closing, now)
			done <- err
		}()
		select {
		case err := <-done:
			_ = tx.Rollback()
			s.FailNow("assignment did not wait for the tenant row", "err: %v", err)
		case <-time.After(300 * time.Millisecond):
		}

		s.Require().NoError(tx.Commit())
		select {
		case err := <-done:
			s.ErrorIs(err, sentinel.ErrInvalidState)
		case <-time.After(10 * time.Second):
			s.FailNow("assignment still blocked after the deactivation committed")
		}

		u, err := s.store.FindByID(s.ctx, userID)
		s.Require().NoError(err)
		s.Equal(home, *u.TenantID)
	})

	s.Run("unknown tenant", func() {
		userID := s.pg.CreateTestUser(s.ctx, s.T(), s.pg.CreateTestTenant(s.ctx, s.T()))
		_, err := s.store.AssignTenantIfActive(s.ctx, userID, id.TenantID(uuid.New()), now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown user", func() {
		_, err := s.store.AssignTenantIfActive(s.ctx, id.UserID(uuid.New()), s.pg.CreateTestTenant(s.ctx, s.T()), now)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresUserStoreSuite) TestEmailIsUniqueIgnoringCase() {
	now := time.Now().UTC()
	first, err := models.NewUser(id.UserID(uuid.New()), "Head.Teacher@school.test", id.RoleAdmin, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, first))

	second, err := models.NewUser(id.UserID(uuid.New()), "head.teacher@SCHOOL.test", id.RoleTeacher, now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, second), sentinel.ErrAlreadyUsed)

	found, err := s.store.FindByEmail(s.ctx, "HEAD.TEACHER@school.test")
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)
}
