package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/abdul-hamid-achik/flowspec/packages/metrics"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary   JSONSummary    `json:"summary"`
	Scenarios []JSONScenario `json:"scenarios"`
	Duration  float64        `json:"duration"`
	Time      string         `json:"time"`
}

// JSONSummary totals every scenario and step written
type JSONSummary struct {
	Scenarios int `json:"scenarios"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Steps     int `json:"steps"`
}

type JSONScenario struct {
	Name      string          `json:"name"`
	File      string          `json:"file,omitempty"`
	Passed    bool            `json:"passed"`
	Counts    runner.Counts   `json:"counts"`
	Duration  float64         `json:"duration"`
	Steps     []JSONStep      `json:"steps"`
	Latency   metrics.Summary `json:"latency"`
	Variables map[string]any  `json:"variables,omitempty"`
	Errors    []string        `json:"errors,omitempty"`
}

// JSONStep represents a single step result
type JSONStep struct {
	Name       string          `json:"name"`
	Path       string          `json:"path"`
	Phase      string          `json:"phase"`
	Kind       string          `json:"kind"`
	Depth      int             `json:"depth"`
	State      string          `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	Duration   float64         `json:"duration"`
	Attempts   int             `json:"attempts,omitempty"`
	Request    *JSONRequest    `json:"request,omitempty"`
	Response   *JSONResponse   `json:"response,omitempty"`
	Assertions []JSONAssertion `json:"assertions,omitempty"`
	Extracted  map[string]any  `json:"extracted,omitempty"`
	Missed     []string        `json:"missed,omitempty"`
}

// JSONRequest represents request details
type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    any               `json:"body,omitempty"`
}

// JSONResponse represents response details
type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body,omitempty"`
}

// JSONAssertion represents an assertion result
type JSONAssertion struct {
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Actual     any    `json:"actual,omitempty"`
	Message    string `json:"message,omitempty"`
}

// JSONFormatter accumulates scenario results and writes them as one document
type JSONFormatter struct {
	writer    io.Writer
	scenarios []JSONScenario
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer:    os.Stdout,
		scenarios: make([]JSONScenario, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) Report(result *runner.ScenarioResult) error {
	sc := JSONScenario{
		Name:      result.Name,
		File:      result.File,
		Passed:    result.Passed,
		Counts:    result.Counts,
		Duration:  float64(result.Duration.Milliseconds()),
		Steps:     make([]JSONStep, 0, len(result.Results)),
		Latency:   result.Latency,
		Variables: result.Snapshot.Scenario,
		Errors:    result.Errors,
	}

	for _, r := range result.Results {
		step := JSONStep{
			Name:     r.Name,
			Path:     r.Path,
			Phase:    string(r.Phase),
			Kind:     r.Kind,
			Depth:    r.Depth,
			State:    string(r.State),
			Reason:   r.Reason,
			Duration: float64(r.Duration.Milliseconds()),
			Attempts: r.Attempts,
			Missed:   r.Missed,
		}

		if r.Request != nil {
			step.Request = &JSONRequest{
				Method:  r.Request.Method,
				URL:     r.Request.FullURL(),
				Headers: r.Request.Headers,
				Body:    r.Request.Body,
			}
		}

		if r.StatusCode != 0 {
			step.Response = &JSONResponse{
				StatusCode: r.StatusCode,
				Headers:    r.Headers,
				Body:       r.Body,
			}
		}

		if len(r.Assertions) > 0 {
			step.Assertions = make([]JSONAssertion, len(r.Assertions))
			for i, a := range r.Assertions {
				step.Assertions[i] = JSONAssertion{
					Expression: a.Expression,
					Passed:     a.Passed,
					Actual:     a.Actual,
					Message:    a.Message,
				}
			}
		}

		if len(r.Extracted) > 0 {
			step.Extracted = make(map[string]any, len(r.Extracted))
			for _, p := range r.Extracted {
				step.Extracted[p.Name] = p.Value
			}
		}

		sc.Steps = append(sc.Steps, step)
	}

	f.scenarios = append(f.scenarios, sc)
	return nil
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual scenario results
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	summary := JSONSummary{Scenarios: len(f.scenarios)}
	for _, s := range f.scenarios {
		if s.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
		summary.Steps += len(s.Steps)
	}

	output := JSONOutput{
		Summary:   summary,
		Scenarios: f.scenarios,
		Duration:  float64(totalDuration.Milliseconds()),
		Time:      time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
