package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"gopkg.in/yaml.v3"
)

// TAPFormatter streams TAP version 14. Each scenario is a subtest whose
// points are its steps; the top-level plan is written by Flush.
type TAPFormatter struct {
	writer    io.Writer
	started   bool
	scenarios int
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

// tapDiagnostic is the YAML block below a point that did not pass.
type tapDiagnostic struct {
	State      runner.State `yaml:"state"`
	Reason     string       `yaml:"reason,omitempty"`
	Status     int          `yaml:"status,omitempty"`
	Attempts   int          `yaml:"attempts,omitempty"`
	Assertions []string     `yaml:"assertions,omitempty"`
}

func (f *TAPFormatter) begin() {
	if !f.started {
		fmt.Fprintln(f.writer, "TAP version 14")
		f.started = true
	}
}

func (f *TAPFormatter) Report(result *runner.ScenarioResult) error {
	f.begin()
	f.scenarios++

	fmt.Fprintf(f.writer, "# Subtest: %s\n", result.Name)
	fmt.Fprintf(f.writer, "    1..%d\n", len(result.Results))
	for i, r := range result.Results {
		f.point("    ", i+1, r)
	}

	status := "ok"
	if !result.Passed {
		status = "not ok"
	}
	fmt.Fprintf(f.writer, "%s %d - %s\n", status, f.scenarios, result.Name)
	for _, e := range result.Errors {
		fmt.Fprintf(f.writer, "# %s\n", e)
	}
	return nil
}

func (f *TAPFormatter) point(indent string, n int, r *runner.StepResult) {
	switch r.State {
	case runner.StatePassed:
		fmt.Fprintf(f.writer, "%sok %d - %s\n", indent, n, r.Path)
		return
	case runner.StateSkipped:
		fmt.Fprintf(f.writer, "%sok %d - %s # SKIP %s\n", indent, n, r.Path, r.Reason)
		return
	}

	fmt.Fprintf(f.writer, "%snot ok %d - %s\n", indent, n, r.Path)
	diag := tapDiagnostic{State: r.State, Reason: r.Reason, Status: r.StatusCode}
	if r.Attempts > 1 {
		diag.Attempts = r.Attempts
	}
	for _, a := range r.Assertions {
		if !a.Passed {
			diag.Assertions = append(diag.Assertions, a.Expression)
		}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(diag); err != nil {
		return
	}
	_ = enc.Close()

	block := indent + "  "
	fmt.Fprintf(f.writer, "%s---\n", block)
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		fmt.Fprintf(f.writer, "%s%s\n", block, line)
	}
	fmt.Fprintf(f.writer, "%s...\n", block)
}

// FormatError writes a TAP comment; the error is not a test point.
func (f *TAPFormatter) FormatError(err error) {
	f.begin()
	fmt.Fprintf(f.writer, "# error: %v\n", err)
}

func (f *TAPFormatter) FormatHeader(version string) {}

// Flush closes the stream with the plan of scenarios.
func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	f.begin()
	fmt.Fprintf(f.writer, "1..%d\n", f.scenarios)
	fmt.Fprintf(f.writer, "# duration %s\n", totalDuration.Round(time.Millisecond))
	return nil
}
