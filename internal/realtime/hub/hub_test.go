package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"beacon/internal/realtime/models"
)

type fakeMember struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Send(frame []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.full {
		return false
	}
	m.frames = append(m.frames, frame)
	return true
}

func (m *fakeMember) received() []models.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Frame, 0, len(m.frames))
	for _, raw := range m.frames {
		var f models.Frame
		_ = json.Unmarshal(raw, &f)
		out = append(out, f)
	}
	return out
}

type HubSuite struct {
	suite.Suite
	hub *Hub
	ctx context.Context
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) SetupTest() {
	s.hub = New(WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.ctx = context.Background()
}

func (s *HubSuite) TestMembership() {
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}

	s.True(s.hub.Join("room-1", a))
	s.False(s.hub.Join("room-1", a), "second join is idempotent")
	s.True(s.hub.Join("room-1", b))
	s.True(s.hub.Join("room-2", a))
	s.Equal(2, s.hub.Members("room-1"))
	s.Equal([]string{"room-1", "room-2"}, s.hub.Rooms("a"))

	s.True(s.hub.Leave("room-1", "a"))
	s.False(s.hub.Leave("room-1", "a"))
	s.Equal(1, s.hub.Members("room-1"))

	s.Equal([]string{"room-2"}, s.hub.RemoveConn("a"))
	s.Empty(s.hub.Rooms("a"))
	s.Equal(0, s.hub.Members("room-2"))
	s.Empty(s.hub.RemoveConn("missing"))
}

func (s *HubSuite) TestEmitToRoom() {
	a := &fakeMember{id: "a"}
	b := &fakeMember{id: "b"}
	outsider := &fakeMember{id: "c"}
	s.hub.Join("interest-1", a)
	s.hub.Join("interest-1", b)
	s.hub.Join("interest-2", outsider)

	err := s.hub.EmitToRoom(s.ctx, "interest-1", "data", map[string]any{"uid": "interest-1"})
	s.Require().NoError(err)

	for _, m := range []*fakeMember{a, b} {
		frames := m.received()
		s.Require().Len(frames, 1)
		s.Equal("data", frames[0].Event)
		s.JSONEq(`{"uid":"interest-1"}`, string(frames[0].Data))
	}
	s.Empty(outsider.received())
}

func (s *HubSuite) TestEmitToRoomDropsForFullMember() {
	slow := &fakeMember{id: "slow", full: true}
	fast := &fakeMember{id: "fast"}
	s.hub.Join("room", slow)
	s.hub.Join("room", fast)

	s.Require().NoError(s.hub.EmitToRoom(s.ctx, "room", "data", 1))
	s.Empty(slow.received())
	s.Len(fast.received(), 1)
}

func (s *HubSuite) TestEmitToEmptyRoom() {
	s.NoError(s.hub.EmitToRoom(s.ctx, "nobody", "data", 1))
}

func (s *HubSuite) TestEmitUnencodablePayload() {
	s.hub.Join("room", &fakeMember{id: "a"})
	s.Error(s.hub.EmitToRoom(s.ctx, "room", "data", make(chan int)))
}

func (s *HubSuite) TestConcurrentJoinAndEmit() {
	var wg sync.WaitGroup
	for i := range 50 {
		m := &fakeMember{id: string(rune('A' + i))}
		wg.Go(func() {
			s.hub.Join("busy", m)
			_ = s.hub.EmitToRoom(s.ctx, "busy", "data", i)
			s.hub.RemoveConn(m.ID())
		})
	}
	wg.Wait()
	s.Equal(0, s.hub.Members("busy"))
}
