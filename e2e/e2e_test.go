package e2e

import (
	"context"
	"os"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the feature files against a running server at
// BEACON_BASE_URL.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("BEACON_BASE_URL")
	if baseURL == "" {
		t.Skip("BEACON_BASE_URL not set")
	}
	tc := NewTestContext(baseURL)

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
				tc.Reset()
				return ctx, err
			})
			RegisterSteps(ctx, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature tests failed")
	}
}
