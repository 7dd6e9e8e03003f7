package runner

import (
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/assertions"
	"github.com/abdul-hamid-achik/flowspec/packages/capture"
	"github.com/abdul-hamid-achik/flowspec/packages/core/vars"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
	"github.com/abdul-hamid-achik/flowspec/packages/metrics"
	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
)

// State is the lifecycle position of a step.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
	StateSkipped State = "skipped"
	StateError   State = "error"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	switch s {
	case StatePassed, StateFailed, StateSkipped, StateError:
		return true
	}
	return false
}

// severity orders terminal states for aggregation; skipped never outweighs
// an executed outcome.
func (s State) severity() int {
	switch s {
	case StateError:
		return 3
	case StateFailed:
		return 2
	case StatePassed:
		return 1
	default:
		return 0
	}
}

func worse(a, b State) State {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Cancellation and abort reasons recorded on steps that never ran.
const (
	ReasonCancelled   = "cancelled"
	ReasonSetupFailed = "not run: setup failed"
)

type StepResult struct {
	Name  string         `json:"name"`
	Path  string         `json:"path"`
	Depth int            `json:"depth"`
	Phase scenario.Phase `json:"phase"`
	Kind  string         `json:"kind"`

	Request    *http.Request        `json:"request,omitempty"`
	StatusCode int                  `json:"status_code,omitempty"`
	Headers    map[string]string    `json:"headers,omitempty"`
	Body       any                  `json:"body,omitempty"`
	Extracted  []capture.Pair       `json:"extracted,omitempty"`
	Missed     []string             `json:"missed,omitempty"`
	Assertions []*assertions.Result `json:"assertions,omitempty"`
	Duration   time.Duration        `json:"duration"`
	State      State                `json:"state"`
	Reason     string               `json:"reason,omitempty"`
	Attempts   int                  `json:"attempts,omitempty"`
	Err        error                `json:"-"`
}

// Passed reports whether the step ended in the passed state.
func (r *StepResult) Passed() bool {
	return r.State == StatePassed
}

// Counts tallies terminal states across a run.
type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Error   int `json:"error"`
	Total   int `json:"total"`
}

func (c *Counts) add(s State) {
	c.Total++
	switch s {
	case StatePassed:
		c.Passed++
	case StateFailed:
		c.Failed++
	case StateSkipped:
		c.Skipped++
	case StateError:
		c.Error++
	}
}

type ScenarioResult struct {
	Name     string          `json:"name"`
	File     string          `json:"file,omitempty"`
	Results  []*StepResult   `json:"results"`
	Passed   bool            `json:"passed"`
	Counts   Counts          `json:"counts"`
	Duration time.Duration   `json:"duration"`
	Latency  metrics.Summary `json:"latency"`
	Snapshot vars.Snapshot   `json:"snapshot"`
	// Errors lists scenario-level problems, such as a cancelled run.
	Errors []string `json:"errors,omitempty"`
}

// Find returns the first result with the given path.
func (r *ScenarioResult) Find(path string) *StepResult {
	for _, res := range r.Results {
		if res.Path == path {
			return res
		}
	}
	return nil
}

// Phase returns the results of one phase in order.
func (r *ScenarioResult) Phase(p scenario.Phase) []*StepResult {
	var out []*StepResult
	for _, res := range r.Results {
		if res.Phase == p {
			out = append(out, res)
		}
	}
	return out
}
