// Package session runs the per-connection state machine: it consumes inbound
// join, leave and disconnect messages one at a time so that room membership and
// presence updates for a connection never race each other.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"beacon/internal/realtime/hub"
	"beacon/internal/realtime/legacy"
	"beacon/internal/realtime/metrics"
	"beacon/internal/realtime/models"
	"beacon/pkg/requestcontext"
)

// Rooms is the membership side of the hub.
type Rooms interface {
	Join(room string, m hub.Member) bool
	Leave(room, connID string) bool
	RemoveConn(connID string) []string
}

// Presence toggles online state for reserved rooms.
type Presence interface {
	Join(ctx context.Context, room, practice, patient string) (bool, error)
	Leave(ctx context.Context, room, practice, patient string) (bool, error)
}

// Subscriptions drops registered interests on legacy leave.
type Subscriptions interface {
	Unsubscribe(ctx context.Context, kind, id string) error
}

// Deps are shared across every session of a server.
type Deps struct {
	Rooms         Rooms
	Presence      Presence
	Subscriptions Subscriptions
	Codec         *legacy.Codec
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

type presenceKey struct {
	practice string
	patient  string
}

// Session holds the state of one connection.
type Session struct {
	member hub.Member
	deps   Deps

	// presence rooms this connection marked online
	tracked map[string]presenceKey
	closed  bool
}

func New(member hub.Member, deps Deps) (*Session, error) {
	if member == nil {
		return nil, errors.New("member is required")
	}
	if deps.Rooms == nil {
		return nil, errors.New("rooms is required")
	}
	if deps.Presence == nil {
		return nil, errors.New("presence is required")
	}
	if deps.Subscriptions == nil {
		return nil, errors.New("subscriptions is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Session{
		member:  member,
		deps:    deps,
		tracked: make(map[string]presenceKey),
	}, nil
}

// Run handles messages until the channel closes or ctx is cancelled, then
// performs disconnect cleanup if the stream did not already end with it.
func (s *Session) Run(ctx context.Context, inbound <-chan models.Inbound) {
	defer func() {
		if !s.closed {
			s.disconnect(context.WithoutCancel(ctx))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-inbound:
			if !ok {
				return
			}
			s.Handle(ctx, in)
			if s.closed {
				return
			}
		}
	}
}

// Handle applies a single message.
func (s *Session) Handle(ctx context.Context, in models.Inbound) {
	s.deps.Metrics.IncrementInbound(in.Kind.String())
	req := in.Request
	req.Normalize()

	switch in.Kind {
	case models.InboundJoin:
		s.join(ctx, req)
	case models.InboundLeave:
		s.leave(ctx, req)
	case models.InboundDisconnect:
		s.disconnect(ctx)
	}
}

func (s *Session) join(ctx context.Context, req models.RoomRequest) {
	if req.UID == "" {
		s.reply(ctx, models.EventError, map[string]string{"message": "uid is required"})
		return
	}
	s.deps.Rooms.Join(req.UID, s.member)
	s.reply(ctx, models.EventJoined, req.UID)

	tracked, err := s.deps.Presence.Join(ctx, req.UID, req.Practice, req.Patient)
	if err != nil {
		s.logError(ctx, "presence join failed", req.UID, err)
		return
	}
	if tracked {
		s.tracked[req.UID] = presenceKey{practice: req.Practice, patient: req.Patient}
	}
}

func (s *Session) leave(ctx context.Context, req models.RoomRequest) {
	if req.UID == "" {
		s.reply(ctx, models.EventError, map[string]string{"message": "uid is required"})
		return
	}
	if req.MetaData != "" {
		s.dropLegacySubscription(ctx, req)
	}
	s.deps.Rooms.Leave(req.UID, s.member.ID())

	key, wasTracked := s.tracked[req.UID]
	if req.Practice == "" && req.Patient == "" && wasTracked {
		req.Practice, req.Patient = key.practice, key.patient
	}
	delete(s.tracked, req.UID)
	if _, err := s.deps.Presence.Leave(ctx, req.UID, req.Practice, req.Patient); err != nil {
		s.logError(ctx, "presence leave failed", req.UID, err)
	}
}

func (s *Session) dropLegacySubscription(ctx context.Context, req models.RoomRequest) {
	meta, err := s.deps.Codec.Open(req.MetaData)
	if err != nil {
		s.logError(ctx, "ignoring undecodable leave metadata", req.UID, err)
		return
	}
	if meta.Model == "" {
		return
	}
	if err := s.deps.Subscriptions.Unsubscribe(ctx, meta.Model, req.UID); err != nil {
		s.logError(ctx, "legacy unsubscribe failed", req.UID, err)
	}
}

func (s *Session) disconnect(ctx context.Context) {
	s.closed = true
	s.deps.Rooms.RemoveConn(s.member.ID())

	rooms := make([]string, 0, len(s.tracked))
	for room := range s.tracked {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	for _, room := range rooms {
		key := s.tracked[room]
		if _, err := s.deps.Presence.Leave(ctx, room, key.practice, key.patient); err != nil {
			s.logError(ctx, "presence cleanup failed", room, err)
		}
	}
	clear(s.tracked)
}

// Tracked returns the presence rooms this connection currently holds online.
func (s *Session) Tracked() []string {
	rooms := make([]string, 0, len(s.tracked))
	for room := range s.tracked {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (s *Session) reply(ctx context.Context, event string, payload any) {
	frame, err := hub.Encode(event, payload)
	if err != nil {
		s.logError(ctx, "failed to encode reply", "", err)
		return
	}
	if !s.member.Send(frame) {
		s.deps.Metrics.IncrementDropped(event)
	}
}

func (s *Session) logError(ctx context.Context, msg, room string, err error) {
	s.deps.Logger.WarnContext(ctx, msg,
		"connection_id", requestcontext.ConnectionID(ctx),
		"room", room,
		"error", err,
	)
}
