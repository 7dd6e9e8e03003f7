package scenario

import (
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/capture"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
)

// Kind tells which control block, if any, a step carries.
type Kind int

const (
	KindPlain Kind = iota
	KindConditional
	KindLoop
	KindParallel
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindConditional:
		return "condition"
	case KindLoop:
		return "loop"
	case KindParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// Phase names the section of a scenario a step belongs to.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseMain     Phase = "steps"
	PhaseTeardown Phase = "teardown"
)

type Scenario struct {
	Name        string
	Description string
	Config      Config
	Setup       []*Step
	Steps       []*Step
	Teardown    []*Step
	// File is set when the scenario was loaded from disk.
	File string
}

// Config holds the scenario-wide settings. Keys the engine does not know
// are kept in Extra and published as global variables.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Retry      int
	RetryDelay time.Duration
	Delay      time.Duration
	// Rate limits requests per second; zero means unlimited.
	Rate      float64
	VerifyTLS *bool
	Headers   map[string]any
	Auth      *http.Auth
	Extra     map[string]any
}

type Step struct {
	Name string
	Kind Kind
	// API is the raw "METHOD /path" reference; Method and Path are its parts.
	API     string
	Method  string
	Path    string
	Request http.Template
	Extract []capture.Rule
	Assert  []string

	Condition *Condition
	Loop      *Loop
	Parallel  *Parallel

	// Retry overrides the scenario retry count when set.
	Retry      *int
	RetryDelay time.Duration
	Delay      time.Duration
	Timeout    time.Duration

	// blocks lists every control block found while parsing, so the
	// validator can reject steps that declare more than one.
	blocks []string
}

// HasCall reports whether the step issues an HTTP request.
func (s *Step) HasCall() bool {
	return s.API != ""
}

type Condition struct {
	If   string
	Then []*Step
	Else []*Step
}

// Loop runs Steps once per element of Items, binding the element to
// Variable. Items is a literal list or a placeholder such as "${orders}".
type Loop struct {
	Items    any
	Variable string
	Steps    []*Step
}

type Parallel struct {
	Items      any
	Variable   string
	MaxWorkers int
	Steps      []*Step
}

// AllSteps walks the step tree depth first, in document order.
func (s *Scenario) AllSteps() []*Step {
	var out []*Step
	var walk func([]*Step)
	walk = func(steps []*Step) {
		for _, st := range steps {
			out = append(out, st)
			switch st.Kind {
			case KindConditional:
				walk(st.Condition.Then)
				walk(st.Condition.Else)
			case KindLoop:
				walk(st.Loop.Steps)
			case KindParallel:
				walk(st.Parallel.Steps)
			}
		}
	}
	walk(s.Setup)
	walk(s.Steps)
	walk(s.Teardown)
	return out
}
