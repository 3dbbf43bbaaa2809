package presence

import (
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

const (
	pollInterval = 100 * time.Millisecond
	pollTimeout  = 5 * time.Second
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	GetLastStatus() int
	GetResponseField(field string) (any, error)
}

// RegisterSteps registers presence lookup steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &presenceSteps{tc: tc}
	ctx.Step(`^patient "([^"]*)" of practice "([^"]*)" should be online$`, steps.shouldBeOnline)
	ctx.Step(`^patient "([^"]*)" of practice "([^"]*)" should be offline$`, steps.shouldBeOffline)
}

type presenceSteps struct {
	tc TestContext
}

func (s *presenceSteps) shouldBeOnline(patient, practice string) error {
	return s.await(practice, patient, true)
}

func (s *presenceSteps) shouldBeOffline(patient, practice string) error {
	return s.await(practice, patient, false)
}

// await polls the presence endpoint since socket events are applied
// asynchronously.
func (s *presenceSteps) await(practice, patient string, want bool) error {
	deadline := time.Now().Add(pollTimeout)
	var last any
	for time.Now().Before(deadline) {
		if err := s.tc.GET(fmt.Sprintf("/presence/%s/%s", practice, patient), nil); err != nil {
			return err
		}
		if s.tc.GetLastStatus() == 200 {
			v, err := s.tc.GetResponseField("online")
			if err != nil {
				return err
			}
			if online, ok := v.(bool); ok && online == want {
				return nil
			}
			last = v
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("expected online=%t for %s/%s, last saw %v", want, practice, patient, last)
}
