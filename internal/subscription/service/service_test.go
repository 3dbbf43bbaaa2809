package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"beacon/internal/filter"
	"beacon/internal/schema"
	"beacon/internal/subscription/models"
	"beacon/internal/subscription/store"
	dErrors "beacon/pkg/domain-errors"
	"beacon/pkg/requestcontext"
)

const patientID = "65e1f0c2a9b3d4e5f6a7b8ca"

type ServiceSuite struct {
	suite.Suite
	store   *store.InMemory
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	svc, err := New(s.store, schema.DefaultCatalog())
	s.Require().NoError(err)
	s.service = svc
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
}

func (s *ServiceSuite) TestNewRequiresDependencies() {
	_, err := New(nil, schema.DefaultCatalog())
	s.EqualError(err, "store is required")
	_, err = New(store.NewInMemory(), nil)
	s.EqualError(err, "catalog is required")
}

func (s *ServiceSuite) TestSubscribe() {
	s.Run("compiles and stores", func() {
		in, err := s.service.Subscribe(s.ctx, "appointment", "room-1", models.Descriptor{
			Filter: map[string]any{"patient": patientID},
			Expand: []string{"doctor.practice", "patient"},
		})
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), in.RegisteredAt)
		s.Equal(filter.FieldEquals{Path: "patient", Value: filter.Ref(patientID)}, in.Compiled.Expr)

		stored, err := s.service.Get(s.ctx, "appointment", "room-1")
		s.Require().NoError(err)
		s.Equal([]string{"doctor.practice", "patient"}, stored.Descriptor.Expand)
	})

	s.Run("nil filter is stored as empty", func() {
		in, err := s.service.Subscribe(s.ctx, "invoice", "room-2", models.Descriptor{CountOnly: true})
		s.Require().NoError(err)
		s.Equal(map[string]any{}, in.Descriptor.Filter)
		s.True(in.Compiled.Matches(map[string]any{"status": "any"}))
	})

	s.Run("re-registration replaces the descriptor", func() {
		_, err := s.service.Subscribe(s.ctx, "appointment", "room-3", models.Descriptor{Filter: map[string]any{"status": "booked"}})
		s.Require().NoError(err)
		_, err = s.service.Subscribe(s.ctx, "appointment", "room-3", models.Descriptor{Filter: map[string]any{"status": "cancelled"}})
		s.Require().NoError(err)

		interests, err := s.service.Interests(s.ctx, "appointment")
		s.Require().NoError(err)
		var found []models.Interest
		for _, in := range interests {
			if in.ID == "room-3" {
				found = append(found, in)
			}
		}
		s.Require().Len(found, 1)
		s.Equal("cancelled", found[0].Descriptor.Filter["status"])
	})
}

func (s *ServiceSuite) TestSubscribeRejects() {
	cases := map[string]struct {
		kind string
		id   string
		desc models.Descriptor
	}{
		"missing model":      {kind: "", id: "room", desc: models.Descriptor{}},
		"missing uid":        {kind: "patient", id: " ", desc: models.Descriptor{}},
		"unknown model":      {kind: "spaceship", id: "room", desc: models.Descriptor{}},
		"unknown field":      {kind: "patient", id: "room", desc: models.Descriptor{Filter: map[string]any{"nope": 1}}},
		"malformed operator": {kind: "patient", id: "room", desc: models.Descriptor{Filter: map[string]any{"status": map[string]any{"$in": "x"}}}},
		"non-list or":        {kind: "patient", id: "room", desc: models.Descriptor{Filter: map[string]any{"$or": "x"}}},
		"bad populate":       {kind: "appointment", id: "room", desc: models.Descriptor{Expand: []string{"status"}}},
		"opaque populate":    {kind: "appointment", id: "room", desc: models.Descriptor{Expand: []string{"createdBy"}}},
	}
	for name, tc := range cases {
		s.Run(name, func() {
			_, err := s.service.Subscribe(s.ctx, tc.kind, tc.id, tc.desc)
			s.Require().Error(err)
			s.Equal(dErrors.CodeValidation, dErrors.CodeOf(err))
		})
	}
	s.Equal(0, len(s.service.Stats()))
}

func (s *ServiceSuite) TestUnsubscribe() {
	_, err := s.service.Subscribe(s.ctx, "patient", "room-1", models.Descriptor{})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Unsubscribe(s.ctx, "patient", "room-1"))
	s.Require().NoError(s.service.Unsubscribe(s.ctx, "patient", "room-1"))
	s.Require().NoError(s.service.Unsubscribe(s.ctx, "unknown", "room-1"))

	_, err = s.service.Get(s.ctx, "patient", "room-1")
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestForEachToleratesMutation() {
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.service.Subscribe(s.ctx, "patient", id, models.Descriptor{})
		s.Require().NoError(err)
	}

	var seen []string
	err := s.service.ForEach(s.ctx, "patient", func(in models.Interest) error {
		seen = append(seen, in.ID)
		if in.ID == "a" {
			s.Require().NoError(s.service.Unsubscribe(s.ctx, "patient", "b"))
			_, err := s.service.Subscribe(s.ctx, "patient", "d", models.Descriptor{})
			s.Require().NoError(err)
		}
		return nil
	})
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c"}, seen)
	s.Equal(map[string]int{"patient": 3}, s.service.Stats())
}
