// Package store persists presence flags.
package store

import (
	"context"
	"sync"

	"beacon/internal/presence/models"
	"beacon/pkg/platform/sentinel"
)

// InMemory keeps presence flags in process.
type InMemory struct {
	mu    sync.RWMutex
	flags map[models.Key]bool
}

func NewInMemory() *InMemory {
	return &InMemory{flags: make(map[models.Key]bool)}
}

func (s *InMemory) SetOnline(_ context.Context, key models.Key, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = online
	return nil
}

// Get returns sentinel.ErrNotFound for keys never seen.
func (s *InMemory) Get(_ context.Context, key models.Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	online, ok := s.flags[key]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	return online, nil
}
