// Package hub tracks room membership for socket connections and fans frames out
// to every member of a room.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"beacon/internal/realtime/metrics"
	"beacon/internal/realtime/models"
)

// Member is a connection that can receive encoded frames. Send must not block;
// it returns false when the frame was dropped.
type Member interface {
	ID() string
	Send(frame []byte) bool
}

// Hub maps rooms to members. It is safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]Member
	memberships map[string]map[string]struct{}

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

func New(opts ...Option) *Hub {
	h := &Hub{
		rooms:       make(map[string]map[string]Member),
		memberships: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Join adds m to room and reports whether it was a new membership.
func (h *Hub) Join(room string, m Member) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Member)
		h.rooms[room] = members
	}
	if _, exists := members[m.ID()]; exists {
		return false
	}
	members[m.ID()] = m

	joined, ok := h.memberships[m.ID()]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[m.ID()] = joined
	}
	joined[room] = struct{}{}
	h.metrics.SetRooms(len(h.rooms))
	return true
}

// Leave removes the connection from room and reports whether it was a member.
func (h *Hub) Leave(room, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	left := h.leaveLocked(room, connID)
	h.metrics.SetRooms(len(h.rooms))
	return left
}

// RemoveConn drops every membership of the connection and returns the rooms it
// left, sorted.
func (h *Hub) RemoveConn(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined := h.memberships[connID]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		h.leaveLocked(room, connID)
	}
	delete(h.memberships, connID)
	h.metrics.SetRooms(len(h.rooms))
	sort.Strings(rooms)
	return rooms
}

func (h *Hub) leaveLocked(room, connID string) bool {
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if joined, ok := h.memberships[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(h.memberships, connID)
		}
	}
	return true
}

// Members returns the number of connections in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms a connection belongs to, sorted.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.memberships[connID]))
	for room := range h.memberships[connID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// EmitToRoom encodes payload once and queues it on every member of room. An
// empty room is not an error. Members whose buffers are full lose the frame.
func (h *Hub) EmitToRoom(ctx context.Context, room, event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s frame for room %q: %w", event, room, err)
	}

	h.mu.RLock()
	members := make([]Member, 0, len(h.rooms[room]))
	for _, m := range h.rooms[room] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	for _, m := range members {
		if m.Send(frame) {
			h.metrics.IncrementEmitted(event)
			continue
		}
		h.metrics.IncrementDropped(event)
		h.logger.WarnContext(ctx, "dropped frame for slow connection",
			"room", room,
			"event", event,
			"connection_id", m.ID(),
		)
	}
	return nil
}

// Encode builds the wire form of a frame.
func Encode(event string, payload any) ([]byte, error) {
	if event == "" {
		return nil, errors.New("event is required")
	}
	frame, err := models.NewFrame(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame)
}
