package e2e

import (
	"context"
	"flag"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

// Scenarios tagged @local reconfigure or seed the in-process server and are
// skipped against a remote BASE_URL unless GODOG_TAGS says otherwise.
const remoteTags = "~@local"

var opts = godog.Options{
	Output:      colors.Colored(os.Stdout),
	Format:      "pretty",
	Paths:       []string{"features"},
	Strict:      true,
	Concurrency: 1,
}

func init() {
	godog.BindCommandLineFlags("godog.", &opts)
}

func TestFeatures(t *testing.T) {
	flag.Parse()
	if testing.Short() {
		t.Skip("feature tests skipped in -short mode")
	}
	opts.TestingT = t
	opts.Tags = scenarioTags(opts.Tags)

	status := godog.TestSuite{
		Name:                "credtrust",
		ScenarioInitializer: InitializeScenario,
		Options:             &opts,
	}.Run()
	if status != 0 {
		t.Fatalf("feature run exited with status %d", status)
	}
}

// scenarioTags prefers an explicit -godog.tags flag, then GODOG_TAGS, then
// excludes @local when a remote target is configured.
func scenarioTags(flagTags string) string {
	switch {
	case flagTags != "":
		return flagTags
	case os.Getenv("GODOG_TAGS") != "":
		return os.Getenv("GODOG_TAGS")
	case os.Getenv("BASE_URL") != "":
		return remoteTags
	}
	return ""
}

// InitializeScenario builds a fresh TestContext per scenario.
func InitializeScenario(sc *godog.ScenarioContext) {
	tc := NewTestContext()

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if err != nil {
			opts.TestingT.Logf("scenario %q failed; last response %d: %s",
				s.Name, tc.GetLastResponseStatus(), tc.LastResponseBody)
		}
		tc.Close()
		return ctx, nil
	})

	RegisterSteps(sc, tc)
}
