package review

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantguard/internal/sentinel"
)

type InMemory struct {
	mu        sync.RWMutex
	items     map[uuid.UUID]*Item
	byAnomaly map[string]uuid.UUID
}

func NewInMemory() *InMemory {
	return &InMemory{
		items:     make(map[uuid.UUID]*Item),
		byAnomaly: make(map[string]uuid.UUID),
	}
}

func (s *InMemory) Flag(_ context.Context, item *Item) (*Item, bool, error) {
	if item == nil || item.AnomalyID == "" {
		return nil, false, fmt.Errorf("anomaly id is required: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAnomaly[item.AnomalyID]; ok {
		c := *s.items[existing]
		return &c, false, nil
	}
	stored := *item
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.Status == "" {
		stored.Status = StatusOpen
	}
	s.items[stored.ID] = &stored
	s.byAnomaly[stored.AnomalyID] = stored.ID
	c := stored
	return &c, true, nil
}

// List returns items oldest first. An empty status lists everything.
func (s *InMemory) List(_ context.Context, status Status, limit int) ([]*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Item
	for _, item := range s.items {
		if status != "" && item.Status != status {
			continue
		}
		c := *item
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].AnomalyID < out[j].AnomalyID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) Resolve(_ context.Context, itemID uuid.UUID, by string, now time.Time) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if item.Status == StatusResolved {
		return nil, fmt.Errorf("review item already resolved: %w", sentinel.ErrInvalidState)
	}
	item.Status = StatusResolved
	item.ResolvedAt = &now
	item.ResolvedBy = by
	c := *item
	return &c, nil
}
