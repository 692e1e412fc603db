package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result for golden comparison: each case's table as
// aligned text, or its error code. The form matches CLI table output, so
// golden diffs read like what a user would see.
func (r *Result) Snapshot() string {
	var sb strings.Builder
	sb.WriteString("scenario: ")
	sb.WriteString(r.Scenario)
	sb.WriteByte('\n')
	for _, c := range r.Cases {
		sb.WriteString("case: ")
		sb.WriteString(c.Name)
		sb.WriteByte('\n')
		if c.ErrorCode != "" {
			sb.WriteString("error: ")
			sb.WriteString(c.ErrorCode)
			sb.WriteByte('\n')
			continue
		}
		if c.Table != nil {
			sb.WriteString(c.Table.String())
		}
	}
	return sb.String()
}

// RunWithGolden runs the scenario, fails the test on any expectation
// mismatch, and compares the rendered result against the golden file at
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), s)
	if err != nil {
		t.Fatalf("running scenario %s: %v", s.Name, err)
	}
	for _, failure := range result.Failures() {
		t.Errorf("scenario %s: %s", s.Name, failure)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, []byte(result.Snapshot()))
	return result
}
