package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	presenceService "beacon/internal/presence/service"
	presenceStore "beacon/internal/presence/store"
	"beacon/internal/realtime/hub"
	"beacon/internal/realtime/legacy"
	"beacon/internal/realtime/models"
)

type recordingMember struct {
	id     string
	mu     sync.Mutex
	frames []models.Frame
}

func (m *recordingMember) ID() string { return m.id }

func (m *recordingMember) Send(raw []byte) bool {
	var f models.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return false
	}
	m.mu.Lock()
	m.frames = append(m.frames, f)
	m.mu.Unlock()
	return true
}

func (m *recordingMember) last() models.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return models.Frame{}
	}
	return m.frames[len(m.frames)-1]
}

type unsubscribeCall struct{ kind, id string }

type recordingSubscriptions struct {
	calls []unsubscribeCall
	err   error
}

func (r *recordingSubscriptions) Unsubscribe(_ context.Context, kind, id string) error {
	r.calls = append(r.calls, unsubscribeCall{kind, id})
	return r.err
}

type SessionSuite struct {
	suite.Suite
	ctx     context.Context
	hub     *hub.Hub
	tracker *presenceService.Tracker
	subs    *recordingSubscriptions
	codec   *legacy.Codec
	member  *recordingMember
	session *Session
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func (s *SessionSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ctx = context.Background()
	s.hub = hub.New(hub.WithLogger(logger))
	tracker, err := presenceService.New(presenceStore.NewInMemory(), presenceService.WithLogger(logger))
	s.Require().NoError(err)
	s.tracker = tracker
	s.subs = &recordingSubscriptions{}
	s.codec = legacy.New("secret")
	s.member = &recordingMember{id: "conn-1"}

	sess, err := New(s.member, Deps{
		Rooms:         s.hub,
		Presence:      s.tracker,
		Subscriptions: s.subs,
		Codec:         s.codec,
		Logger:        logger,
	})
	s.Require().NoError(err)
	s.session = sess
}

func (s *SessionSuite) online(practice, patient string) bool {
	state, err := s.tracker.Online(s.ctx, practice, patient)
	s.Require().NoError(err)
	return state.Online
}

func (s *SessionSuite) join(req models.RoomRequest) {
	s.session.Handle(s.ctx, models.Inbound{Kind: models.InboundJoin, Request: req})
}

func (s *SessionSuite) leave(req models.RoomRequest) {
	s.session.Handle(s.ctx, models.Inbound{Kind: models.InboundLeave, Request: req})
}

func (s *SessionSuite) TestNew() {
	_, err := New(nil, Deps{})
	s.EqualError(err, "member is required")
	_, err = New(s.member, Deps{})
	s.EqualError(err, "rooms is required")
	_, err = New(s.member, Deps{Rooms: s.hub})
	s.EqualError(err, "presence is required")
	_, err = New(s.member, Deps{Rooms: s.hub, Presence: s.tracker})
	s.EqualError(err, "subscriptions is required")
}

func (s *SessionSuite) TestJoinRepliesAndJoinsRoom() {
	s.join(models.RoomRequest{UID: "interest-1"})

	s.Equal(1, s.hub.Members("interest-1"))
	reply := s.member.last()
	s.Equal(models.EventJoined, reply.Event)
	s.JSONEq(`"interest-1"`, string(reply.Data))
	s.Empty(s.session.Tracked())
}

func (s *SessionSuite) TestJoinWithoutUID() {
	s.join(models.RoomRequest{UID: "  "})
	s.Equal(models.EventError, s.member.last().Event)
}

func (s *SessionSuite) TestPresenceJoinLeave() {
	s.join(models.RoomRequest{UID: "unread-count-7", Practice: "practice-1", Patient: "patient-1"})
	s.True(s.online("practice-1", "patient-1"))
	s.Equal([]string{"unread-count-7"}, s.session.Tracked())

	s.leave(models.RoomRequest{UID: "unread-count-7", Practice: "practice-1", Patient: "patient-1"})
	s.False(s.online("practice-1", "patient-1"))
	s.Equal(0, s.hub.Members("unread-count-7"))
	s.Empty(s.session.Tracked())
}

func (s *SessionSuite) TestLeaveFallsBackToTrackedIDs() {
	s.join(models.RoomRequest{UID: "unread-count", Practice: "practice-1", Patient: "patient-2"})
	s.True(s.online("practice-1", "patient-2"))

	s.leave(models.RoomRequest{UID: "unread-count"})
	s.False(s.online("practice-1", "patient-2"))
}

func (s *SessionSuite) TestOrdinaryRoomLeavesPresenceUntouched() {
	s.join(models.RoomRequest{UID: "appointments", Practice: "practice-1", Patient: "patient-3"})
	s.False(s.online("practice-1", "patient-3"))
}

func (s *SessionSuite) TestLegacyLeaveUnsubscribes() {
	blob, err := s.codec.Seal(legacy.Metadata{Model: "appointment"})
	s.Require().NoError(err)

	s.join(models.RoomRequest{UID: "interest-9"})
	s.leave(models.RoomRequest{UID: "interest-9", MetaData: blob})

	s.Equal([]unsubscribeCall{{kind: "appointment", id: "interest-9"}}, s.subs.calls)
	s.Equal(0, s.hub.Members("interest-9"))
}

func (s *SessionSuite) TestLegacyLeaveWithBadMetadataStillLeaves() {
	s.join(models.RoomRequest{UID: "interest-9"})
	s.leave(models.RoomRequest{UID: "interest-9", MetaData: "garbage"})

	s.Empty(s.subs.calls)
	s.Equal(0, s.hub.Members("interest-9"))
}

func (s *SessionSuite) TestLegacyUnsubscribeFailureStillLeaves() {
	s.subs.err = errors.New("boom")
	blob, err := s.codec.Seal(legacy.Metadata{Model: "invoice"})
	s.Require().NoError(err)

	s.join(models.RoomRequest{UID: "interest-3"})
	s.leave(models.RoomRequest{UID: "interest-3", MetaData: blob})
	s.Len(s.subs.calls, 1)
	s.Equal(0, s.hub.Members("interest-3"))
}

func (s *SessionSuite) TestRunCleansUpOnDisconnect() {
	inbound := make(chan models.Inbound, 4)
	inbound <- models.Inbound{Kind: models.InboundJoin, Request: models.RoomRequest{UID: "unread-count-1", Practice: "p", Patient: "u"}}
	inbound <- models.Inbound{Kind: models.InboundJoin, Request: models.RoomRequest{UID: "interest-1"}}
	inbound <- models.Inbound{Kind: models.InboundDisconnect}
	close(inbound)

	s.session.Run(s.ctx, inbound)

	s.False(s.online("p", "u"))
	s.Equal(0, s.hub.Members("unread-count-1"))
	s.Equal(0, s.hub.Members("interest-1"))
	s.Empty(s.hub.Rooms("conn-1"))
}

func (s *SessionSuite) TestRunCleansUpWhenChannelClosesWithoutDisconnect() {
	inbound := make(chan models.Inbound, 1)
	inbound <- models.Inbound{Kind: models.InboundJoin, Request: models.RoomRequest{UID: "unread-count-1", Practice: "p", Patient: "u"}}
	close(inbound)

	s.session.Run(s.ctx, inbound)
	s.False(s.online("p", "u"))
	s.Empty(s.hub.Rooms("conn-1"))
}

func (s *SessionSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	inbound := make(chan models.Inbound)
	done := make(chan struct{})
	go func() {
		s.session.Run(ctx, inbound)
		close(done)
	}()
	cancel()
	<-done
	s.Empty(s.hub.Rooms("conn-1"))
}
