package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"beacon/internal/subscription/models"
	"beacon/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func interest(kind, id string, filter map[string]any) models.Interest {
	return models.Interest{Kind: kind, ID: id, Descriptor: models.Descriptor{Filter: filter}}
}

func (s *InMemoryStoreSuite) TestUpsertReplaces() {
	s.Require().NoError(s.store.Upsert(s.ctx, interest("patient", "room-1", map[string]any{"status": "a"})))
	s.Require().NoError(s.store.Upsert(s.ctx, interest("patient", "room-1", map[string]any{"status": "b"})))

	got, err := s.store.Get(s.ctx, "patient", "room-1")
	s.Require().NoError(err)
	s.Equal("b", got.Descriptor.Filter["status"])
	s.Equal(1, s.store.Len())
}

func (s *InMemoryStoreSuite) TestRemove() {
	s.Run("missing is a no-op", func() {
		removed, err := s.store.Remove(s.ctx, "patient", "nobody")
		s.Require().NoError(err)
		s.False(removed)
	})

	s.Run("removes and drops empty kinds", func() {
		s.Require().NoError(s.store.Upsert(s.ctx, interest("invoice", "room-2", nil)))
		removed, err := s.store.Remove(s.ctx, "invoice", "room-2")
		s.Require().NoError(err)
		s.True(removed)

		_, err = s.store.Get(s.ctx, "invoice", "room-2")
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.NotContains(s.store.Kinds(), "invoice")
	})
}

func (s *InMemoryStoreSuite) TestSnapshotIsolation() {
	for i := range 5 {
		s.Require().NoError(s.store.Upsert(s.ctx, interest("patient", fmt.Sprintf("room-%d", i), nil)))
	}
	snap, err := s.store.Snapshot(s.ctx, "patient")
	s.Require().NoError(err)
	s.Len(snap, 5)
	s.Equal("room-0", snap[0].ID)

	// mutating during iteration does not affect the snapshot
	for _, in := range snap {
		_, err := s.store.Remove(s.ctx, in.Kind, in.ID)
		s.Require().NoError(err)
	}
	s.Len(snap, 5)
	s.Equal(0, s.store.Len())
}

func (s *InMemoryStoreSuite) TestGetReturnsCopy() {
	s.Require().NoError(s.store.Upsert(s.ctx, interest("patient", "room-1", map[string]any{"status": "a"})))
	got, err := s.store.Get(s.ctx, "patient", "room-1")
	s.Require().NoError(err)
	got.Descriptor.Filter["status"] = "mutated"

	again, err := s.store.Get(s.ctx, "patient", "room-1")
	s.Require().NoError(err)
	s.Equal("a", again.Descriptor.Filter["status"])
}

func (s *InMemoryStoreSuite) TestConcurrentAccess() {
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("room-%d", i)
			_ = s.store.Upsert(s.ctx, interest("patient", id, nil))
			_, _ = s.store.Snapshot(s.ctx, "patient")
			if i%2 == 0 {
				_, _ = s.store.Remove(s.ctx, "patient", id)
			}
		}()
	}
	wg.Wait()
	s.Equal(10, s.store.Len())
	s.Equal(map[string]int{"patient": 10}, s.store.CountByKind())
}
