package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cucumber/godog"

	"beacon/e2e/frames"
)

const frameTimeout = 5 * time.Second

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Connect(name string) error
	Send(name, event string, data any) error
	Await(name, event string, timeout time.Duration) (frames.Frame, error)
}

// RegisterSteps registers websocket steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &realtimeSteps{tc: tc}
	ctx.Step(`^client "([^"]*)" is connected$`, steps.connect)
	ctx.Step(`^client "([^"]*)" joins room "([^"]*)"$`, steps.join)
	ctx.Step(`^client "([^"]*)" joins room "([^"]*)" for practice "([^"]*)" and patient "([^"]*)"$`, steps.joinPresence)
	ctx.Step(`^client "([^"]*)" leaves room "([^"]*)"$`, steps.leave)
	ctx.Step(`^client "([^"]*)" should receive "([^"]*)"$`, steps.shouldReceive)
	ctx.Step(`^client "([^"]*)" should receive "([^"]*)" with field "([^"]*)" equal to "([^"]*)"$`, steps.shouldReceiveField)
}

type realtimeSteps struct {
	tc TestContext
}

func (s *realtimeSteps) connect(name string) error {
	return s.tc.Connect(name)
}

func (s *realtimeSteps) join(name, room string) error {
	if err := s.tc.Send(name, "join", map[string]any{"uid": room}); err != nil {
		return err
	}
	_, err := s.tc.Await(name, "joined", frameTimeout)
	return err
}

func (s *realtimeSteps) joinPresence(name, room, practice, patient string) error {
	if err := s.tc.Send(name, "join", map[string]any{"uid": room, "practice": practice, "patient": patient}); err != nil {
		return err
	}
	_, err := s.tc.Await(name, "joined", frameTimeout)
	return err
}

func (s *realtimeSteps) leave(name, room string) error {
	return s.tc.Send(name, "leave", map[string]any{"uid": room})
}

func (s *realtimeSteps) shouldReceive(name, event string) error {
	_, err := s.tc.Await(name, event, frameTimeout)
	return err
}

func (s *realtimeSteps) shouldReceiveField(name, event, field, expected string) error {
	f, err := s.tc.Await(name, event, frameTimeout)
	if err != nil {
		return err
	}
	var payload struct {
		Data      map[string]any `json:"data"`
		Operation string         `json:"operation"`
		UID       string         `json:"uid"`
	}
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		return fmt.Errorf("decode %s frame: %w", event, err)
	}
	var got any
	switch field {
	case "operation":
		got = payload.Operation
	case "uid":
		got = payload.UID
	default:
		got = payload.Data[field]
	}
	if fmt.Sprint(got) != expected {
		return fmt.Errorf("expected %s=%q in %s frame, got %v", field, expected, event, got)
	}
	return nil
}
