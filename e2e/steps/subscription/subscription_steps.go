package subscription

import (
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GetLastStatus() int
}

// RegisterSteps registers subscription and change steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &subscriptionSteps{tc: tc}
	ctx.Step(`^I subscribe "([^"]*)" to "([^"]*)" with filter:$`, steps.subscribeWithFilter)
	ctx.Step(`^I subscribe "([^"]*)" to the count of "([^"]*)" with filter:$`, steps.subscribeCountWithFilter)
	ctx.Step(`^I unsubscribe "([^"]*)" from "([^"]*)"$`, steps.unsubscribe)
	ctx.Step(`^a "([^"]*)" change to "([^"]*)" is posted with data:$`, steps.postChange)
	ctx.Step(`^I notify group "([^"]*)" with operation "([^"]*)" and data:$`, steps.notifyGroup)
}

type subscriptionSteps struct {
	tc TestContext
}

func (s *subscriptionSteps) subscribeWithFilter(uid, model string, filter *godog.DocString) error {
	return s.subscribe(uid, model, filter, false)
}

func (s *subscriptionSteps) subscribeCountWithFilter(uid, model string, filter *godog.DocString) error {
	return s.subscribe(uid, model, filter, true)
}

func (s *subscriptionSteps) subscribe(uid, model string, filter *godog.DocString, count bool) error {
	var f map[string]any
	if err := json.Unmarshal([]byte(filter.Content), &f); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}
	body := map[string]any{"model": model, "uid": uid, "filter": f, "count": count}
	if err := s.tc.POST("/addSubscription", body); err != nil {
		return err
	}
	if got := s.tc.GetLastStatus(); got != 200 {
		return fmt.Errorf("subscribe %s returned %d", uid, got)
	}
	return nil
}

func (s *subscriptionSteps) unsubscribe(uid, model string) error {
	return s.tc.POST("/removeSubscription", map[string]any{"model": model, "uid": uid})
}

func (s *subscriptionSteps) postChange(operation, model string, data *godog.DocString) error {
	var d map[string]any
	if err := json.Unmarshal([]byte(data.Content), &d); err != nil {
		return fmt.Errorf("invalid change data: %w", err)
	}
	return s.tc.POST("/changes", map[string]any{"model": model, "operation": operation, "data": d})
}

func (s *subscriptionSteps) notifyGroup(group, operation string, data *godog.DocString) error {
	var d map[string]any
	if err := json.Unmarshal([]byte(data.Content), &d); err != nil {
		return fmt.Errorf("invalid group data: %w", err)
	}
	body := []map[string]any{{
		"operation":    operation,
		"groupIdArray": []map[string]any{{"groupName": group, "data": d}},
	}}
	return s.tc.POST("/notifyGroup", body)
}
