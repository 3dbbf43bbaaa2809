package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"beacon/internal/filter"
	"beacon/internal/schema"
	"beacon/pkg/platform/sentinel"
)

const (
	practiceID    = "65e1f0c2a9b3d4e5f6a7b801"
	doctorID      = "65e1f0c2a9b3d4e5f6a7b802"
	patientID     = "65e1f0c2a9b3d4e5f6a7b803"
	appointmentID = "65e1f0c2a9b3d4e5f6a7b804"
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
	s.store = NewInMemory(schema.DefaultCatalog())
	s.ctx = context.Background()

	s.Require().NoError(s.store.Upsert(s.ctx, "practice", map[string]any{"_id": practiceID, "name": "North"}))
	s.Require().NoError(s.store.Upsert(s.ctx, "doctor", map[string]any{"_id": doctorID, "name": "Dr Who", "practice": practiceID}))
	s.Require().NoError(s.store.Upsert(s.ctx, "patient", map[string]any{"_id": patientID, "firstName": "Ada", "practice": practiceID}))
	s.Require().NoError(s.store.Upsert(s.ctx, "appointment", map[string]any{
		"_id":       appointmentID,
		"status":    "booked",
		"patient":   patientID,
		"doctor":    doctorID,
		"startTime": "2024-03-01T09:00:00Z",
		"createdBy": "65e1f0c2a9b3d4e5f6a7b8ff",
	}))
}

func (s *InMemoryStoreSuite) TestFetchByID() {
	s.Run("plain record", func() {
		rec, err := s.store.FetchByID(s.ctx, "appointment", appointmentID, nil)
		s.Require().NoError(err)
		s.Equal(patientID, rec["patient"])
	})

	s.Run("id forms are canonicalised", func() {
		_, err := s.store.FetchByID(s.ctx, "appointment", map[string]any{"$oid": "65E1F0C2A9B3D4E5F6A7B804"}, nil)
		s.Require().NoError(err)
	})

	s.Run("missing record", func() {
		_, err := s.store.FetchByID(s.ctx, "appointment", "65e1f0c2a9b3d4e5f6a7b8aa", nil)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.FetchByID(s.ctx, "appointment", nil, nil)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestExpand() {
	s.Run("nested paths", func() {
		rec, err := s.store.FetchByID(s.ctx, "appointment", appointmentID, []string{"patient", "doctor.practice"})
		s.Require().NoError(err)

		patient := rec["patient"].(map[string]any)
		s.Equal("Ada", patient["firstName"])
		s.Equal(practiceID, patient["practice"], "patient.practice was not requested")

		doctor := rec["doctor"].(map[string]any)
		s.Equal("Dr Who", doctor["name"])
		s.Equal(map[string]any{"_id": practiceID, "name": "North"}, doctor["practice"])
	})

	s.Run("expansion does not leak into the store", func() {
		_, err := s.store.FetchByID(s.ctx, "appointment", appointmentID, []string{"doctor.practice"})
		s.Require().NoError(err)
		rec, err := s.store.FetchByID(s.ctx, "doctor", doctorID, nil)
		s.Require().NoError(err)
		s.Equal(practiceID, rec["practice"])
	})

	s.Run("opaque and unknown relations are left alone", func() {
		rec, err := s.store.FetchByID(s.ctx, "appointment", appointmentID, []string{"createdBy", "status"})
		s.Require().NoError(err)
		s.Equal("65e1f0c2a9b3d4e5f6a7b8ff", rec["createdBy"])
		s.Equal("booked", rec["status"])
	})

	s.Run("dangling ids stay raw", func() {
		s.Require().NoError(s.store.Upsert(s.ctx, "appointment", map[string]any{"_id": "65e1f0c2a9b3d4e5f6a7b805", "patient": "65e1f0c2a9b3d4e5f6a7b8ee"}))
		rec, err := s.store.FetchByID(s.ctx, "appointment", "65e1f0c2a9b3d4e5f6a7b805", []string{"patient"})
		s.Require().NoError(err)
		s.Equal("65e1f0c2a9b3d4e5f6a7b8ee", rec["patient"])
	})

	s.Run("list relations", func() {
		s.Require().NoError(s.store.Upsert(s.ctx, "chatChannelHistory", map[string]any{"_id": "65e1f0c2a9b3d4e5f6a7b806", "patient": patientID}))
		s.Require().NoError(s.store.Upsert(s.ctx, "message", map[string]any{
			"_id":     "65e1f0c2a9b3d4e5f6a7b807",
			"channel": "65e1f0c2a9b3d4e5f6a7b806",
		}))
		rec, err := s.store.FetchByID(s.ctx, "message", "65e1f0c2a9b3d4e5f6a7b807", []string{"channel.patient"})
		s.Require().NoError(err)
		channel := rec["channel"].(map[string]any)
		s.Equal("Ada", channel["patient"].(map[string]any)["firstName"])
	})
}

func (s *InMemoryStoreSuite) TestCount() {
	s.Require().NoError(s.store.Upsert(s.ctx, "appointment", map[string]any{"_id": "65e1f0c2a9b3d4e5f6a7b808", "status": "cancelled", "patient": patientID}))
	tc := filter.NewTypecaster(schema.DefaultCatalog())

	byPatient, err := filter.Compile(tc, "appointment", map[string]any{"patient": patientID})
	s.Require().NoError(err)
	n, err := s.store.Count(s.ctx, "appointment", byPatient)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	booked, err := filter.Compile(tc, "appointment", map[string]any{"status": "booked", "startTime": map[string]any{"$exists": true}})
	s.Require().NoError(err)
	n, err = s.store.Count(s.ctx, "appointment", booked)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.store.Count(s.ctx, "invoice", byPatient)
	s.Require().NoError(err)
	s.Equal(int64(0), n)
}

func (s *InMemoryStoreSuite) TestDelete() {
	s.Require().NoError(s.store.Delete(s.ctx, "appointment", appointmentID))
	s.Require().NoError(s.store.Delete(s.ctx, "appointment", appointmentID))
	_, err := s.store.FetchByID(s.ctx, "appointment", appointmentID, nil)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestUpsertRequiresID() {
	s.ErrorIs(s.store.Upsert(s.ctx, "appointment", map[string]any{"status": "x"}), errMissingID)
}
