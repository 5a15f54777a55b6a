package e2e

import (
	"github.com/cucumber/godog"

	"custody/e2e/steps/audit"
	"custody/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (requests, status and field assertions)
	common.RegisterSteps(ctx, tc)

	// Register audit trail steps
	audit.RegisterSteps(ctx, tc)
}
