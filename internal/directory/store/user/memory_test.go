package user

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tenantguard/internal/directory/models"
	tenantstore "tenantguard/internal/directory/store/tenant"
	"tenantguard/internal/sentinel"
	id "tenantguard/pkg/domain"
)

// InMemoryUserStoreSuite tests the in-memory user store.
//
// Justification: AssignTenantIfActive is the only writer of a user's tenant;
// its conditional, all-or-nothing behaviour is what the directory relies on.
type InMemoryUserStoreSuite struct {
	suite.Suite
	ctx     context.Context
	tenants *tenantstore.InMemory
	store   *InMemory
	active  *models.Tenant
	closed  *models.Tenant
}

func TestInMemoryUserStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryUserStoreSuite))
}

func (s *InMemoryUserStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenants = tenantstore.NewInMemory()
	s.store = NewInMemory(s.tenants)

	now := time.Now()
	var err error
	s.active, err = models.NewTenant(id.TenantID(uuid.New()), "Open School", models.PlanBasic, models.Quotas{}, now)
	s.Require().NoError(err)
	s.closed, err = models.NewTenant(id.TenantID(uuid.New()), "Closed School", models.PlanBasic, models.Quotas{}, now)
	s.Require().NoError(err)
	s.Require().NoError(s.closed.Deactivate(now))
	s.Require().NoError(s.tenants.CreateIfNameAvailable(s.ctx, s.active))
	s.Require().NoError(s.tenants.CreateIfNameAvailable(s.ctx, s.closed))
}

func (s *InMemoryUserStoreSuite) newUser(email string) *models.User {
	u, err := models.NewUser(id.UserID(uuid.New()), email, id.RoleTeacher, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, u))
	return u
}

func (s *InMemoryUserStoreSuite) TestCreateRejectsDuplicateEmail() {
	s.newUser("dup@school.test")

	other, err := models.NewUser(id.UserID(uuid.New()), "DUP@school.test", id.RoleParent, time.Now())
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, other), sentinel.ErrAlreadyUsed)
}

func (s *InMemoryUserStoreSuite) TestFindByEmail() {
	u := s.newUser("find@school.test")

	found, err := s.store.FindByEmail(s.ctx, " Find@School.test")
	s.Require().NoError(err)
	s.Equal(u.ID, found.ID)

	_, err = s.store.FindByEmail(s.ctx, "nobody@school.test")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryUserStoreSuite) TestAssignTenantIfActive() {
	s.Run("first assignment returns nil previous", func() {
		u := s.newUser("first@school.test")

		prev, err := s.store.AssignTenantIfActive(s.ctx, u.ID, s.active.ID, time.Now())
		s.Require().NoError(err)
		s.Nil(prev)

		found, err := s.store.FindByID(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(s.active.ID, *found.TenantID)
	})

	s.Run("inactive tenant leaves prior assignment unchanged", func() {
		u := s.newUser("stay@school.test")
		_, err := s.store.AssignTenantIfActive(s.ctx, u.ID, s.active.ID, time.Now())
		s.Require().NoError(err)

		_, err = s.store.AssignTenantIfActive(s.ctx, u.ID, s.closed.ID, time.Now())
		s.ErrorIs(err, sentinel.ErrInvalidState)

		found, err := s.store.FindByID(s.ctx, u.ID)
		s.Require().NoError(err)
		s.Equal(s.active.ID, *found.TenantID)
	})

	s.Run("unknown tenant and unknown user", func() {
		u := s.newUser("ghost@school.test")
		_, err := s.store.AssignTenantIfActive(s.ctx, u.ID, id.TenantID(uuid.New()), time.Now())
		s.ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.AssignTenantIfActive(s.ctx, id.UserID(uuid.New()), s.active.ID, time.Now())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryUserStoreSuite) TestUpdateCannotChangeTenant() {
	u := s.newUser("sneaky@school.test")
	_, err := s.store.AssignTenantIfActive(s.ctx, u.ID, s.active.ID, time.Now())
	s.Require().NoError(err)

	u.TenantID = id.TenantPtr(s.closed.ID)
	u.Role = id.RoleAdmin
	s.Require().NoError(s.store.Update(s.ctx, u))

	found, err := s.store.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(s.active.ID, *found.TenantID)
	s.Equal(id.RoleAdmin, found.Role)
}

func (s *InMemoryUserStoreSuite) TestAssignRacesDeactivation() {
	u := s.newUser("race@school.test")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = s.store.AssignTenantIfActive(s.ctx, u.ID, s.active.ID, time.Now())
	}()
	go func() {
		defer wg.Done()
		t, err := s.tenants.FindByID(s.ctx, s.active.ID)
		s.NoError(err)
		s.NoError(t.Deactivate(time.Now()))
		s.NoError(s.tenants.Update(s.ctx, t))
	}()
	wg.Wait()

	// Either order is valid; the assignment never observes a half-written state.
	found, err := s.store.FindByID(s.ctx, u.ID)
	s.Require().NoError(err)
	if found.TenantID != nil {
		s.Equal(s.active.ID, *found.TenantID)
	}
}

func (s *InMemoryUserStoreSuite) TestCountByTenant() {
	for _, email := range []string{"a@school.test", "b@school.test"} {
		u := s.newUser(email)
		_, err := s.store.AssignTenantIfActive(s.ctx, u.ID, s.active.ID, time.Now())
		s.Require().NoError(err)
	}
	s.newUser("unassigned@school.test")

	count, err := s.store.CountByTenant(s.ctx, s.active.ID)
	s.Require().NoError(err)
	s.Equal(2, count)
}
