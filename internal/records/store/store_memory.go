// Package store holds the record stores the broadcaster reads from.
package store

import (
	"context"
	"errors"
	"sync"

	"beacon/internal/filter"
	"beacon/internal/records"
	"beacon/pkg/platform/sentinel"
)

// InMemory keeps records per kind. Used when no database is configured and in
// tests.
type InMemory struct {
	mu         sync.RWMutex
	kinds      map[string]map[string]map[string]any
	catalog    records.Catalog
	typecaster *filter.Typecaster
}

func NewInMemory(catalog records.Catalog) *InMemory {
	return &InMemory{
		kinds:      make(map[string]map[string]map[string]any),
		catalog:    catalog,
		typecaster: filter.NewTypecaster(catalog),
	}
}

// Upsert stores a copy of record under its "_id" (or "id").
func (s *InMemory) Upsert(_ context.Context, kind string, record map[string]any) error {
	id, err := recordKey(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.kinds[kind]
	if !ok {
		byID = make(map[string]map[string]any)
		s.kinds[kind] = byID
	}
	byID[id] = cloneRecord(record)
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *InMemory) Delete(_ context.Context, kind string, id any) error {
	key, ok := records.CanonicalID(id)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kinds[kind], key)
	return nil
}

// FetchByID returns a copy of the record with expand paths populated.
func (s *InMemory) FetchByID(ctx context.Context, kind string, id any, expandPaths []string) (map[string]any, error) {
	key, ok := records.CanonicalID(id)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	rec, ok := s.kinds[kind][key]
	if ok {
		rec = cloneRecord(rec)
	}
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := expand(ctx, s.catalog, s.load, kind, rec, expandPaths); err != nil {
		return nil, err
	}
	return rec, nil
}

// Count returns the number of records of kind matching f.
func (s *InMemory) Count(_ context.Context, kind string, f filter.Compiled) (int64, error) {
	s.mu.RLock()
	snapshot := make([]map[string]any, 0, len(s.kinds[kind]))
	for _, rec := range s.kinds[kind] {
		snapshot = append(snapshot, rec)
	}
	s.mu.RUnlock()

	var n int64
	for _, rec := range snapshot {
		cast, err := s.typecaster.Record(kind, rec)
		if err != nil {
			continue
		}
		if f.Matches(cast) {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) load(_ context.Context, kind string, ids []string) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if rec, ok := s.kinds[kind][id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

var errMissingID = errors.New("record has no _id")

func recordKey(record map[string]any) (string, error) {
	raw, ok := record["_id"]
	if !ok {
		raw = record["id"]
	}
	id, ok := records.CanonicalID(raw)
	if !ok {
		return "", errMissingID
	}
	return id, nil
}
