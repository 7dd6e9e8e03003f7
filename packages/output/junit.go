package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
)

// JUnitTestSuites is the document root. Every scenario becomes a suite and
// every step path a test case, classed by file and phase.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

type JUnitTestSuite struct {
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	File       string          `xml:"file,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
	SystemErr  string          `xml:"system-err,omitempty"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitProblem is the body of a failure or error element.
type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter accumulates suites and writes the document in Flush.
type JUnitFormatter struct {
	writer io.Writer
	suites []JUnitTestSuite
	// loadErrors collects files that never ran; they become one errored suite.
	loadErrors []string
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) Report(result *runner.ScenarioResult) error {
	suite := JUnitTestSuite{
		Name:      result.Name,
		Tests:     result.Counts.Total,
		Failures:  result.Counts.Failed,
		Errors:    result.Counts.Error,
		Skipped:   result.Counts.Skipped,
		Time:      result.Duration.Seconds(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		File:      result.File,
		SystemErr: strings.Join(result.Errors, "\n"),
	}
	if o := result.Latency.Overall; o.Count > 0 {
		suite.Properties = []JUnitProperty{
			{Name: "requests", Value: fmt.Sprint(o.Count)},
			{Name: "latency.p50", Value: o.P50.String()},
			{Name: "latency.p95", Value: o.P95.String()},
			{Name: "latency.p99", Value: o.P99.String()},
		}
	}

	class := result.Name
	if result.File != "" {
		class = result.File
	}
	for _, r := range result.Results {
		suite.TestCases = append(suite.TestCases, junitCase(class, r))
	}

	f.suites = append(f.suites, suite)
	return nil
}

func junitCase(class string, r *runner.StepResult) JUnitTestCase {
	tc := JUnitTestCase{
		Name:      r.Path,
		ClassName: class + "." + string(r.Phase),
		Time:      r.Duration.Seconds(),
	}
	if r.Request != nil {
		tc.SystemOut = fmt.Sprintf("%s %s -> %d", r.Request.Method, r.Request.FullURL(), r.StatusCode)
	}

	switch r.State {
	case runner.StateSkipped:
		tc.Skipped = &JUnitSkipped{Message: r.Reason}
	case runner.StateError:
		tc.Error = &JUnitProblem{Message: r.Reason, Type: "error"}
		if r.Err != nil {
			tc.Error.Type = fmt.Sprintf("%T", r.Err)
			tc.Error.Content = r.Err.Error()
		}
	case runner.StateFailed:
		var lines []string
		for _, a := range r.Assertions {
			if !a.Passed {
				lines = append(lines, a.Expression+": "+a.Message)
			}
		}
		tc.Failure = &JUnitProblem{
			Message: r.Reason,
			Type:    "assertion",
			Content: strings.Join(lines, "\n"),
		}
	}
	return tc
}

// FormatError records a file that could not be loaded or validated.
func (f *JUnitFormatter) FormatError(err error) {
	f.loadErrors = append(f.loadErrors, err.Error())
}

func (f *JUnitFormatter) FormatHeader(version string) {}

func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	suites := f.suites
	if len(f.loadErrors) > 0 {
		load := JUnitTestSuite{Name: "load", Tests: len(f.loadErrors), Errors: len(f.loadErrors)}
		for i, msg := range f.loadErrors {
			load.TestCases = append(load.TestCases, JUnitTestCase{
				Name:      fmt.Sprintf("load/%d", i+1),
				ClassName: "flowspec",
				Error:     &JUnitProblem{Message: msg, Type: "load"},
			})
		}
		suites = append(suites, load)
	}

	doc := JUnitTestSuites{
		Name:       "flowspec",
		Time:       totalDuration.Seconds(),
		TestSuites: suites,
	}
	for _, s := range suites {
		doc.Tests += s.Tests
		doc.Failures += s.Failures
		doc.Errors += s.Errors
		doc.Skipped += s.Skipped
	}

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f.writer)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(f.writer, "\n")
	return err
}
