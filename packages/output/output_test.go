package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/assertions"
	"github.com/abdul-hamid-achik/flowspec/packages/capture"
	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *runner.ScenarioResult {
	req := http.NewRequest("POST", "http://api.local/login")
	return &runner.ScenarioResult{
		Name:     "checkout",
		File:     "checkout.yaml",
		Duration: 120 * time.Millisecond,
		Counts:   runner.Counts{Passed: 1, Failed: 1, Skipped: 1, Error: 1, Total: 4},
		Results: []*runner.StepResult{
			{
				Name: "login", Path: "steps/login", Phase: scenario.PhaseMain, Kind: "plain",
				State: runner.StatePassed, StatusCode: 200, Request: req, Attempts: 1,
				Extracted: []capture.Pair{{Name: "token", Value: "abc"}},
			},
			{
				Name: "pay", Path: "steps/pay", Phase: scenario.PhaseMain, Kind: "plain",
				State: runner.StateFailed, StatusCode: 402,
				Reason: "assertion failed: status_code == 200",
				Assertions: []*assertions.Result{
					{Expression: "status_code == 200", Message: "status_code == 200 evaluated to false", Actual: false},
				},
			},
			{
				Name: "refund", Path: "steps/pay/then/refund", Depth: 1, Phase: scenario.PhaseMain, Kind: "plain",
				State: runner.StateSkipped, Reason: "branch not taken",
			},
			{
				Name: "logout", Path: "teardown/logout", Phase: scenario.PhaseTeardown, Kind: "plain",
				State: runner.StateError, Reason: "transport: connection refused",
			},
		},
	}
}

func TestConsoleFormatter_Report(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithVerbose(true), WithNoColor(true))
	require.NoError(t, f.Report(sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "Scenario: checkout (checkout.yaml)")
	assert.Contains(t, out, "✓ login")
	assert.Contains(t, out, "token = abc")
	assert.Contains(t, out, "✗ pay")
	assert.Contains(t, out, "→ status_code == 200")
	assert.Contains(t, out, "    - refund (branch not taken)")
	assert.Contains(t, out, "x logout (transport: connection refused)")
	assert.Contains(t, out, "1 passed, 1 failed, 1 errored, 1 skipped, 4 total")
}

func TestConsoleFormatter_FormatError(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))
	f.FormatError(errors.New("boom"))
	assert.Equal(t, "Error: boom\n", buf.String())
}

func TestJSONFormatter_Flush(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf))
	require.NoError(t, f.Report(sampleResult()))
	require.NoError(t, f.Flush(time.Second))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, JSONSummary{Scenarios: 1, Failed: 1, Steps: 4}, out.Summary)
	require.Len(t, out.Scenarios, 1)

	steps := out.Scenarios[0].Steps
	require.Len(t, steps, 4)
	assert.Equal(t, "steps/login", steps[0].Path)
	assert.Equal(t, "http://api.local/login", steps[0].Request.URL)
	assert.Equal(t, "abc", steps[0].Extracted["token"])
	assert.Equal(t, 402, steps[1].Response.StatusCode)
	assert.Equal(t, "status_code == 200", steps[1].Assertions[0].Expression)
	assert.Equal(t, "skipped", steps[2].State)
	assert.Equal(t, "teardown", steps[3].Phase)
}

func TestJUnitFormatter_Flush(t *testing.T) {
	var buf bytes.Buffer
	f := NewJUnitFormatter(JUnitWithWriter(&buf))
	require.NoError(t, f.Report(sampleResult()))
	f.FormatError(errors.New("broken.yaml: document must be a mapping"))
	require.NoError(t, f.Flush(time.Second))

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suites))
	assert.Equal(t, 5, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 2, suites.Errors)
	require.Len(t, suites.TestSuites, 2)

	cases := suites.TestSuites[0].TestCases
	require.Len(t, cases, 4)
	assert.Equal(t, "checkout.yaml.steps", cases[0].ClassName)
	assert.Equal(t, "POST http://api.local/login -> 200", cases[0].SystemOut)
	assert.Nil(t, cases[0].Failure)
	require.NotNil(t, cases[1].Failure)
	assert.Contains(t, cases[1].Failure.Content, "status_code == 200")
	assert.NotNil(t, cases[2].Skipped)
	assert.NotNil(t, cases[3].Error)
	assert.Equal(t, "checkout.yaml.teardown", cases[3].ClassName)

	load := suites.TestSuites[1]
	assert.Equal(t, "load", load.Name)
	require.Len(t, load.TestCases, 1)
	assert.Contains(t, load.TestCases[0].Error.Message, "broken.yaml")
}

func TestTAPFormatter_Flush(t *testing.T) {
	var buf bytes.Buffer
	f := NewTAPFormatter(TAPWithWriter(&buf))
	require.NoError(t, f.Report(sampleResult()))
	require.NoError(t, f.Flush(time.Second))

	out := buf.String()
	lines := strings.Split(out, "\n")
	assert.Equal(t, "TAP version 14", lines[0])
	assert.Equal(t, "# Subtest: checkout", lines[1])
	assert.Equal(t, "    1..4", lines[2])
	assert.Equal(t, "    ok 1 - steps/login", lines[3])
	assert.Equal(t, "    not ok 2 - steps/pay", lines[4])
	assert.Equal(t, "      ---", lines[5])
	assert.Equal(t, "      state: failed", lines[6])
	assert.Contains(t, out, "      assertions:\n")
	assert.Contains(t, out, "- status_code == 200\n")
	assert.Contains(t, out, "    ok 3 - steps/pay/then/refund # SKIP branch not taken\n")
	assert.Contains(t, out, "    not ok 4 - teardown/logout\n")
	assert.Contains(t, out, "transport: connection refused")
	assert.Contains(t, out, "not ok 1 - checkout\n1..1\n")
}

func TestNew(t *testing.T) {
	for _, format := range Formats {
		f, err := New(format, &bytes.Buffer{}, false, true)
		require.NoError(t, err, format)
		assert.NotNil(t, f)
	}

	_, err := New("html", &bytes.Buffer{}, false, true)
	assert.Error(t, err)
}
