// Package ports declares what the notify engine needs from the rest of the
// service.
package ports

import (
	"context"

	"beacon/internal/filter"
	subModels "beacon/internal/subscription/models"
)

// Registry is a read view of registered interests.
type Registry interface {
	Interests(ctx context.Context, kind string) ([]subModels.Interest, error)
}

// RecordSource resolves payloads for broadcast. FetchByID returns
// sentinel.ErrNotFound for records that no longer exist.
type RecordSource interface {
	Count(ctx context.Context, kind string, f filter.Compiled) (int64, error)
	FetchByID(ctx context.Context, kind string, id any, expand []string) (map[string]any, error)
}

// Emitter delivers an event to every connection in a room.
type Emitter interface {
	EmitToRoom(ctx context.Context, room, event string, payload any) error
}

// RecordSink mirrors accepted change events into the record store so counts
// and fetches observe the change being broadcast.
type RecordSink interface {
	Upsert(ctx context.Context, kind string, record map[string]any) error
	Delete(ctx context.Context, kind string, id any) error
}
