package service_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/notify/models"
	"beacon/internal/notify/service"
	"beacon/internal/realtime/hub"
	recordStore "beacon/internal/records/store"
	"beacon/internal/schema"
	subModels "beacon/internal/subscription/models"
	subService "beacon/internal/subscription/service"
	subStore "beacon/internal/subscription/store"
	"beacon/pkg/testutil"
)

const (
	pipelinePatientA    = "65e1f0c2a9b3d4e5f6a7b801"
	pipelinePatientB    = "65e1f0c2a9b3d4e5f6a7b802"
	pipelineAppointment = "65e1f0c2a9b3d4e5f6a7b803"
)

type inbox struct {
	id     string
	mu     sync.Mutex
	frames []models.Message
}

func (i *inbox) ID() string { return i.id }

func (i *inbox) Send(raw []byte) bool {
	var frame struct {
		Event string         `json:"event"`
		Data  models.Message `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event != models.EventData {
		return false
	}
	i.mu.Lock()
	i.frames = append(i.frames, frame.Data)
	i.mu.Unlock()
	return true
}

func (i *inbox) take() []models.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.frames
	i.frames = nil
	return out
}

// TestPipeline drives registration, dispatch, record mirroring, expansion and
// room delivery with only in-memory components.
func TestPipeline(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := schema.DefaultCatalog()

	subs, err := subService.New(subStore.NewInMemory(), catalog, subService.WithLogger(logger))
	require.NoError(t, err)
	records := recordStore.NewInMemory(catalog)
	rooms := hub.New(hub.WithLogger(logger))

	processor, err := service.NewProcessor(subs.Typecaster())
	require.NoError(t, err)
	broadcaster, err := service.NewBroadcaster(records, rooms, service.WithBroadcasterLogger(logger))
	require.NoError(t, err)
	dispatcher, err := service.New(subs, processor, broadcaster,
		service.WithLogger(logger), service.WithRecordSink(records))
	require.NoError(t, err)

	list := &inbox{id: "conn-list"}
	counter := &inbox{id: "conn-count"}

	testutil.Given(t, "a list interest and a count interest on one patient's appointments", func(t *testing.T) {
		require.NoError(t, records.Upsert(ctx, "patient", map[string]any{"_id": pipelinePatientA, "name": "Ada"}))

		filter := map[string]any{"patient": pipelinePatientA}
		_, err := subs.Subscribe(ctx, "appointment", "list-room", subModels.Descriptor{Filter: filter, Expand: []string{"patient"}})
		require.NoError(t, err)
		_, err = subs.Subscribe(ctx, "appointment", "count-room", subModels.Descriptor{Filter: filter, CountOnly: true})
		require.NoError(t, err)

		rooms.Join("list-room", list)
		rooms.Join("count-room", counter)
	})

	testutil.When(t, "an appointment is created for the patient", func(t *testing.T) {
		summary, err := dispatcher.Dispatch(ctx, []models.ChangeEvent{{
			Kind:      "appointment",
			Operation: models.OperationCreated,
			NewData:   map[string]any{"_id": pipelineAppointment, "patient": pipelinePatientA, "status": "booked"},
		}})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Outcomes)
	})

	testutil.Then(t, "the list room receives the expanded record and the count room the new count", func(t *testing.T) {
		got := list.take()
		require.Len(t, got, 1)
		assert.Equal(t, models.OperationCreated, got[0].Operation)
		assert.Equal(t, "list-room", got[0].UID)
		record, ok := got[0].Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, pipelineAppointment, record["id"])
		patient, ok := record["patient"].(map[string]any)
		require.True(t, ok, "patient is expanded")
		assert.Equal(t, "Ada", patient["name"])

		counts := counter.take()
		require.Len(t, counts, 1)
		assert.Equal(t, map[string]any{"count": float64(1)}, counts[0].Data)
	})

	testutil.When(t, "the appointment moves to another patient", func(t *testing.T) {
		_, err := dispatcher.Dispatch(ctx, []models.ChangeEvent{{
			Kind:      "appointment",
			Operation: models.OperationUpdated,
			NewData:   map[string]any{"_id": pipelineAppointment, "patient": pipelinePatientB, "status": "booked"},
			OldData:   map[string]any{"_id": pipelineAppointment, "patient": pipelinePatientA, "status": "booked"},
		}})
		require.NoError(t, err)
	})

	testutil.Then(t, "the list room sees a removal and the count room an update to zero", func(t *testing.T) {
		got := list.take()
		require.Len(t, got, 1)
		assert.Equal(t, models.OperationRemoved, got[0].Operation)

		counts := counter.take()
		require.Len(t, counts, 1)
		assert.Equal(t, models.OperationUpdated, counts[0].Operation)
		assert.Equal(t, map[string]any{"count": float64(0)}, counts[0].Data)
	})
}
