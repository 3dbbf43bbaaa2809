package e2e

import (
	"github.com/cucumber/godog"

	"beacon/e2e/steps/common"
	"beacon/e2e/steps/presence"
	"beacon/e2e/steps/realtime"
	"beacon/e2e/steps/subscription"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register subscription and change steps
	subscription.RegisterSteps(ctx, tc)

	// Register socket steps
	realtime.RegisterSteps(ctx, tc)

	// Register presence steps
	presence.RegisterSteps(ctx, tc)
}
