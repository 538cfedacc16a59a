package e2e

import (
	"github.com/cucumber/godog"

	"credtrust/e2e/steps/common"
	"credtrust/e2e/steps/credential"
	"credtrust/e2e/steps/twofactor"
)

// RegisterSteps wires every step package to the scenario's context.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	credential.RegisterSteps(ctx, tc)
	twofactor.RegisterSteps(ctx, tc)
}
