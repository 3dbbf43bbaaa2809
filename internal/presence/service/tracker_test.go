package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"beacon/internal/presence/models"
	"beacon/internal/presence/store"
	dErrors "beacon/pkg/domain-errors"
)

type failingStore struct{}

func (failingStore) SetOnline(context.Context, models.Key, bool) error {
	return errors.New("redis down")
}

func (failingStore) Get(context.Context, models.Key) (bool, error) {
	return false, errors.New("redis down")
}

type TrackerSuite struct {
	suite.Suite
	store   *store.InMemory
	tracker *Tracker
	ctx     context.Context
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.store = store.NewInMemory()
	tracker, err := New(s.store)
	s.Require().NoError(err)
	s.tracker = tracker
	s.ctx = context.Background()
}

func (s *TrackerSuite) TestNew() {
	_, err := New(nil)
	s.EqualError(err, "store is required")
}

func (s *TrackerSuite) TestIsPresenceRoom() {
	cases := map[string]bool{
		"unread-count":             true,
		"unread-count-patient-42":  true,
		"unread-counter":           false,
		"unread":                   false,
		"appointment-unread-count": false,
		"":                         false,
	}
	for room, want := range cases {
		s.Equal(want, s.tracker.IsPresenceRoom(room), room)
	}

	s.Run("custom prefix", func() {
		tracker, err := New(s.store, WithRoomPrefix("badge"))
		s.Require().NoError(err)
		s.True(tracker.IsPresenceRoom("badge-1"))
		s.False(tracker.IsPresenceRoom("unread-count"))
	})
}

func (s *TrackerSuite) TestJoinLeave() {
	s.Run("join then leave flips the flag", func() {
		tracked, err := s.tracker.Join(s.ctx, "unread-count-1", "practice-1", "patient-1")
		s.Require().NoError(err)
		s.True(tracked)

		state, err := s.tracker.Online(s.ctx, "practice-1", "patient-1")
		s.Require().NoError(err)
		s.Equal(models.State{Practice: "practice-1", Patient: "patient-1", Online: true}, state)

		tracked, err = s.tracker.Leave(s.ctx, "unread-count-1", "practice-1", "patient-1")
		s.Require().NoError(err)
		s.True(tracked)

		state, err = s.tracker.Online(s.ctx, "practice-1", "patient-1")
		s.Require().NoError(err)
		s.False(state.Online)
	})

	s.Run("ordinary rooms do not touch presence", func() {
		tracked, err := s.tracker.Join(s.ctx, "appointments-7", "practice-2", "patient-2")
		s.Require().NoError(err)
		s.False(tracked)

		state, err := s.tracker.Online(s.ctx, "practice-2", "patient-2")
		s.Require().NoError(err)
		s.False(state.Online)
	})

	s.Run("reserved room without ids is membership only", func() {
		tracked, err := s.tracker.Join(s.ctx, "unread-count", "practice-3", "")
		s.Require().NoError(err)
		s.False(tracked)
	})
}

func (s *TrackerSuite) TestOnline() {
	s.Run("unseen key is offline", func() {
		state, err := s.tracker.Online(s.ctx, "p", "u")
		s.Require().NoError(err)
		s.False(state.Online)
	})

	s.Run("missing ids are a validation error", func() {
		_, err := s.tracker.Online(s.ctx, " ", "u")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("ids sharing a storage key stay distinct", func() {
		tracked, err := s.tracker.Join(s.ctx, "unread-count", "a:b", "c")
		s.Require().NoError(err)
		s.False(tracked)

		_, err = s.tracker.Online(s.ctx, "a", "b:c")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *TrackerSuite) TestStoreFailure() {
	tracker, err := New(failingStore{})
	s.Require().NoError(err)

	tracked, err := tracker.Join(s.ctx, "unread-count", "p", "u")
	s.False(tracked)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = tracker.Online(s.ctx, "p", "u")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
