package user

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tenantguard/internal/directory/models"
	"tenantguard/internal/sentinel"
	id "tenantguard/pkg/domain"
)

// TenantGate runs fn only while the tenant is known to be active and keeps
// it that way until fn returns. The in-memory tenant store implements it.
type TenantGate interface {
	WithActive(tenantID id.TenantID, fn func() error) error
}

// InMemory stores users in memory for tests and the demo environment.
type InMemory struct {
	mu       sync.RWMutex
	users    map[id.UserID]*models.User
	emailIdx map[string]id.UserID
	tenants  TenantGate
}

// NewInMemory creates an in-memory user store. tenants backs
// AssignTenantIfActive; it may be nil when assignment is never used.
func NewInMemory(tenants TenantGate) *InMemory {
	return &InMemory{
		users:    make(map[id.UserID]*models.User),
		emailIdx: make(map[string]id.UserID),
		tenants:  tenants,
	}
}

// Create persists a new user; emails are unique case-insensitively.
func (s *InMemory) Create(_ context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is required: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, exists := s.emailIdx[email]; exists {
		return fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user id already exists: %w", sentinel.ErrAlreadyUsed)
	}
	s.users[u.ID] = cloneUser(u)
	s.emailIdx[email] = u.ID
	return nil
}

// Update replaces the mutable profile fields. TenantID is left untouched:
// only AssignTenantIfActive moves a user between schools.
func (s *InMemory) Update(_ context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is required: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[u.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	next := cloneUser(u)
	next.TenantID = current.TenantID
	next.Email = current.Email
	s.users[u.ID] = next
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return cloneUser(u), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if userID, ok := s.emailIdx[strings.ToLower(strings.TrimSpace(email))]; ok {
		return cloneUser(s.users[userID]), nil
	}
	return nil, sentinel.ErrNotFound
}

// AssignTenantIfActive sets the user's tenant only if the tenant exists and
// is active, holding the tenant lock for the whole write. It returns the
// previous assignment.
func (s *InMemory) AssignTenantIfActive(_ context.Context, userID id.UserID, tenantID id.TenantID, now time.Time) (*id.TenantID, error) {
	if s.tenants == nil {
		return nil, fmt.Errorf("tenant gate not configured: %w", sentinel.ErrInvalidState)
	}
	var previous *id.TenantID
	err := s.tenants.WithActive(tenantID, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		u, ok := s.users[userID]
		if !ok {
			return fmt.Errorf("user: %w", sentinel.ErrNotFound)
		}
		previous = u.TenantID
		u.TenantID = id.TenantPtr(tenantID)
		u.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// CountByTenant returns how many users are assigned to tenantID.
func (s *InMemory) CountByTenant(_ context.Context, tenantID id.TenantID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, u := range s.users {
		if u.TenantID != nil && *u.TenantID == tenantID {
			count++
		}
	}
	return count, nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.TenantID != nil {
		c.TenantID = id.TenantPtr(*u.TenantID)
	}
	c.LinkedTeacherID = cloneString(u.LinkedTeacherID)
	c.LinkedStudentID = cloneString(u.LinkedStudentID)
	c.LinkedParentOf = cloneString(u.LinkedParentOf)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
