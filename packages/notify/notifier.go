// Package notify posts a summary of a flowspec run to chat webhooks.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/runner"
	"github.com/hashicorp/go-multierror"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when a scenario fails
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when every scenario passes
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends on failure and on the first passing run after one
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn maps a flag value onto a policy.
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch NotifyOn(s) {
	case "":
		return NotifyFailure, nil
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return NotifyOn(s), nil
	}
	return "", fmt.Errorf("unknown notify policy %q (want always, failure, success or recovery)", s)
}

// Summary is what a notifier renders for one run.
type Summary struct {
	Scenarios  int
	Failed     int
	Steps      runner.Counts
	Duration   time.Duration
	Failures   []Failure
	IsRecovery bool
}

// Passed reports whether every scenario passed.
func (s *Summary) Passed() bool {
	return s.Failed == 0
}

// Failure names a scenario that did not pass and the steps that sank it.
type Failure struct {
	Scenario string
	File     string
	Steps    []string
}

// Notifier is the interface for notification services
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
	Name() string
}

// Manager collects scenario results as a runner sink and notifies once per
// run when Flush is called.
type Manager struct {
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful

	mu      sync.Mutex
	results []*runner.ScenarioResult
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers ...Notifier) *Manager {
	return &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true,
	}
}

// Report records one scenario of the current run.
func (m *Manager) Report(result *runner.ScenarioResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

// Flush summarizes the collected scenarios, notifies according to the
// policy and starts a new run.
func (m *Manager) Flush(duration time.Duration) error {
	m.mu.Lock()
	results := m.results
	m.results = nil
	m.mu.Unlock()

	summary := Summarize(results, duration)
	return m.Notify(context.Background(), summary)
}

// Notify sends the summary to every notifier if the policy asks for it.
func (m *Manager) Notify(ctx context.Context, summary *Summary) error {
	current := summary.Passed()

	var send bool
	switch m.notifyOn {
	case NotifyAlways:
		send = true
	case NotifyFailure:
		send = !current
	case NotifySuccess:
		send = current
	case NotifyRecovery:
		summary.IsRecovery = !m.lastState && current
		send = summary.IsRecovery || !current
	}
	m.lastState = current

	if !send {
		return nil
	}

	var errs *multierror.Error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errs.ErrorOrNil()
}

// Summarize folds scenario results into a Summary.
func Summarize(results []*runner.ScenarioResult, duration time.Duration) *Summary {
	s := &Summary{Scenarios: len(results), Duration: duration}
	for _, r := range results {
		s.Steps.Passed += r.Counts.Passed
		s.Steps.Failed += r.Counts.Failed
		s.Steps.Skipped += r.Counts.Skipped
		s.Steps.Error += r.Counts.Error
		s.Steps.Total += r.Counts.Total
		if r.Passed {
			continue
		}

		s.Failed++
		f := Failure{Scenario: r.Name, File: r.File}
		for _, step := range r.Results {
			if step.State == runner.StateFailed || step.State == runner.StateError {
				f.Steps = append(f.Steps, fmt.Sprintf("%s: %s", step.Path, step.Reason))
			}
		}
		f.Steps = append(f.Steps, r.Errors...)
		s.Failures = append(s.Failures, f)
	}
	return s
}

// headline is shared by every notifier.
func headline(s *Summary) string {
	switch {
	case !s.Passed():
		return fmt.Sprintf("%d of %d scenario(s) failed", s.Failed, s.Scenarios)
	case s.IsRecovery:
		return "Scenarios recovered"
	default:
		return fmt.Sprintf("All %d scenario(s) passed", s.Scenarios)
	}
}
