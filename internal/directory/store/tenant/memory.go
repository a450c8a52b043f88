package tenant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tenantguard/internal/directory/models"
	"tenantguard/internal/sentinel"
	id "tenantguard/pkg/domain"
)

// InMemory stores tenants in memory for tests and the demo environment.
// Callers receive copies; writes go through Update.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
	nameIdx map[string]id.TenantID
}

// NewInMemory creates an in-memory tenant store.
func NewInMemory() *InMemory {
	return &InMemory{
		tenants: make(map[id.TenantID]*models.Tenant),
		nameIdx: make(map[string]id.TenantID),
	}
}

// CreateIfNameAvailable atomically creates the tenant if the name is not already taken (case-insensitive).
func (s *InMemory) CreateIfNameAvailable(_ context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lower := strings.ToLower(t.Name)
	if _, exists := s.nameIdx[lower]; exists {
		return fmt.Errorf("tenant name must be unique: %w", sentinel.ErrAlreadyUsed)
	}
	if _, exists := s.tenants[t.ID]; exists {
		return fmt.Errorf("tenant id already exists: %w", sentinel.ErrAlreadyUsed)
	}
	stored := *t
	s.tenants[t.ID] = &stored
	s.nameIdx[lower] = t.ID
	return nil
}

// Update replaces a stored tenant, keeping the name index in step.
func (s *InMemory) Update(_ context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.tenants[t.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	oldName := strings.ToLower(current.Name)
	newName := strings.ToLower(t.Name)
	if oldName != newName {
		if _, taken := s.nameIdx[newName]; taken {
			return fmt.Errorf("tenant name must be unique: %w", sentinel.ErrAlreadyUsed)
		}
		delete(s.nameIdx, oldName)
		s.nameIdx[newName] = t.ID
	}
	stored := *t
	s.tenants[t.ID] = &stored
	return nil
}

// FindByID retrieves a tenant by its UUID.
func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tenants[tenantID]; ok {
		found := *t
		return &found, nil
	}
	return nil, sentinel.ErrNotFound
}

// FindByName retrieves a tenant by name (case-insensitive).
func (s *InMemory) FindByName(_ context.Context, name string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tenantID, ok := s.nameIdx[strings.ToLower(name)]; ok {
		found := *s.tenants[tenantID]
		return &found, nil
	}
	return nil, sentinel.ErrNotFound
}

// List returns all tenants ordered by name.
func (s *InMemory) List(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		found := *t
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Count returns the total number of tenants.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants), nil
}

// WithActive runs fn while holding the read lock, after confirming that the
// tenant exists and is active. Status changes block until fn returns, which
// lets the user store make tenant assignment conditional on tenant status.
func (s *InMemory) WithActive(tenantID id.TenantID, fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !t.IsActive() {
		return sentinel.ErrInvalidState
	}
	return fn()
}
