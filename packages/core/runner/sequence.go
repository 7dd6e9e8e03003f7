package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/core/vars"
	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/sirupsen/logrus"
)

// location places a sequence of steps in the result tree.
type location struct {
	phase  scenario.Phase
	prefix string
	depth  int
}

func (l location) path(name string) string {
	return l.prefix + "/" + name
}

// nested is the location of a block body below the step at path.
func (l location) nested(path string) location {
	return location{phase: l.phase, prefix: path, depth: l.depth + 1}
}

// policy decides which outcomes stop the remaining steps of a sequence.
type policy struct {
	stopOnError  bool
	stopOnFailed bool
}

var (
	setupPolicy    = policy{stopOnError: true, stopOnFailed: true}
	teardownPolicy = policy{}
)

func (p policy) stops(s State) bool {
	return (s == StateError && p.stopOnError) || (s == StateFailed && p.stopOnFailed)
}

// outcome is the flattened result of a sequence; state is the worst state of
// its top-level steps.
type outcome struct {
	results []*StepResult
	state   State
}

func (ex *execution) sequence(ctx context.Context, store *vars.Store, steps []*scenario.Step, loc location, pol policy) outcome {
	var out outcome
	for i, st := range steps {
		if ctx.Err() != nil {
			out.results = append(out.results, ex.notRun(steps[i:], loc, ReasonCancelled)...)
			break
		}

		results := ex.runStep(ctx, store, st, loc, pol)
		own := results[0]
		out.results = append(out.results, results...)
		out.state = worse(out.state, own.State)

		if pol.stops(own.State) && i+1 < len(steps) {
			reason := fmt.Sprintf("not run: %s ended in %s", own.Path, own.State)
			out.results = append(out.results, ex.notRun(steps[i+1:], loc, reason)...)
			break
		}
	}
	return out
}

// notRun records steps that were never started as skipped. Their bodies are
// not expanded.
func (ex *execution) notRun(steps []*scenario.Step, loc location, reason string) []*StepResult {
	out := make([]*StepResult, 0, len(steps))
	for _, st := range steps {
		out = append(out, &StepResult{
			Name:   st.Name,
			Path:   loc.path(st.Name),
			Depth:  loc.depth,
			Phase:  loc.phase,
			Kind:   st.Kind.String(),
			State:  StateSkipped,
			Reason: reason,
		})
	}
	return out
}

// runStep executes one step in its own step scope and returns its result
// followed by the results of any nested steps.
func (ex *execution) runStep(ctx context.Context, store *vars.Store, st *scenario.Step, loc location, pol policy) []*StepResult {
	res := &StepResult{
		Name:  st.Name,
		Path:  loc.path(st.Name),
		Depth: loc.depth,
		Phase: loc.phase,
		Kind:  st.Kind.String(),
		State: StatePending,
	}
	log := ex.r.log.WithFields(logrus.Fields{
		"scenario": ex.s.Name,
		"step":     st.Name,
		"path":     res.Path,
	})

	store.EnterStepScope()
	defer store.ExitStepScope()

	res.State = StateRunning
	log.Debug("step running")
	start := time.Now()

	env := newStepEnv(store, nil, nil)
	if st.HasCall() {
		env = ex.call(ctx, store, st, res, log)
	}

	var children []*StepResult
	if st.Kind != scenario.KindPlain && res.State != StateError {
		var state State
		var reason string
		body := loc.nested(res.Path)
		switch st.Kind {
		case scenario.KindConditional:
			children, state, reason = ex.condition(ctx, store, st, env, body, pol, log)
		case scenario.KindLoop:
			children, state, reason = ex.loop(ctx, store, st, body, pol, log)
		case scenario.KindParallel:
			children, state, reason = ex.parallel(ctx, store, st, body, pol, log)
		}
		ex.settleBlock(res, state, reason)
	}

	res.Duration = time.Since(start)
	entry := log.WithField("state", res.State)
	if res.Reason != "" {
		entry = entry.WithField("reason", res.Reason)
	}
	if loc.phase == scenario.PhaseTeardown && res.State.severity() >= StateFailed.severity() {
		entry.Warn("teardown step did not pass")
	} else {
		entry.Info("step finished")
	}

	return append([]*StepResult{res}, children...)
}

// settleBlock folds the outcome of a control block into the step's own state.
func (ex *execution) settleBlock(res *StepResult, state State, reason string) {
	if res.State == StateRunning {
		// No call of its own: the block decides.
		if state == "" {
			state = StatePassed
		}
		res.State = state
		res.Reason = reason
		return
	}
	if state.severity() > res.State.severity() {
		res.State = state
		res.Reason = reason
	} else if res.Reason == "" {
		res.Reason = reason
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
