// Package store holds the process-wide subscription registry.
package store

import (
	"context"
	"sort"
	"sync"

	"beacon/internal/subscription/models"
	"beacon/pkg/platform/sentinel"
)

// InMemory maps kind → interest id → interest. Safe for concurrent use; iteration
// works on a snapshot so callbacks may mutate the registry.
type InMemory struct {
	mu    sync.RWMutex
	kinds map[string]map[string]models.Interest
}

func NewInMemory() *InMemory {
	return &InMemory{kinds: make(map[string]map[string]models.Interest)}
}

// Upsert stores interest, replacing any previous registration under the same key.
func (s *InMemory) Upsert(_ context.Context, interest models.Interest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.kinds[interest.Kind]
	if !ok {
		byID = make(map[string]models.Interest)
		s.kinds[interest.Kind] = byID
	}
	byID[interest.ID] = interest
	return nil
}

// Remove deletes the interest and reports whether it existed.
func (s *InMemory) Remove(_ context.Context, kind, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.kinds[kind]
	if !ok {
		return false, nil
	}
	if _, ok := byID[id]; !ok {
		return false, nil
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(s.kinds, kind)
	}
	return true, nil
}

func (s *InMemory) Get(_ context.Context, kind, id string) (models.Interest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	interest, ok := s.kinds[kind][id]
	if !ok {
		return models.Interest{}, sentinel.ErrNotFound
	}
	return interest.Clone(), nil
}

// Snapshot returns the interests registered for kind, ordered by id.
func (s *InMemory) Snapshot(_ context.Context, kind string) ([]models.Interest, error) {
	s.mu.RLock()
	byID := s.kinds[kind]
	out := make([]models.Interest, 0, len(byID))
	for _, interest := range byID {
		out = append(out, interest)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len counts interests across all kinds.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byID := range s.kinds {
		n += len(byID)
	}
	return n
}

// Kinds lists kinds with at least one interest, sorted.
func (s *InMemory) Kinds() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.kinds))
	for kind := range s.kinds {
		out = append(out, kind)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// CountByKind returns the number of interests per kind.
func (s *InMemory) CountByKind() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.kinds))
	for kind, byID := range s.kinds {
		out[kind] = len(byID)
	}
	return out
}
