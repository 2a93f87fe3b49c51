package e2e

import (
	"github.com/cucumber/godog"

	"govengine/e2e/steps/common"
	"govengine/e2e/steps/process"
	"govengine/e2e/steps/rules"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background, generic requests and assertions
	common.RegisterSteps(ctx, tc)

	process.RegisterSteps(ctx, tc)
	rules.RegisterSteps(ctx, tc)
}
