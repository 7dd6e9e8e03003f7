package runner

import (
	"context"
	"fmt"
	"reflect"
	"strconv"

	"github.com/abdul-hamid-achik/flowspec/packages/core/vars"
	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ReasonBranchNotTaken marks the steps of the branch a condition did not select.
const ReasonBranchNotTaken = "branch not taken"

func (ex *execution) condition(ctx context.Context, store *vars.Store, st *scenario.Step, env *stepEnv, body location, pol policy, log *logrus.Entry) ([]*StepResult, State, string) {
	c := st.Condition
	out := ex.exprs.Evaluate(c.If, env)

	var reason string
	if out.Err != nil {
		reason = fmt.Sprintf("condition %s treated as false: %s", c.If, out.Reason)
		log.WithError(out.Err).Warn("condition could not be evaluated")
	}
	log.WithField("taken", out.Passed).Debug("condition evaluated")

	thenLoc := body.nestedBranch("then")
	elseLoc := body.nestedBranch("else")

	if out.Passed {
		taken := ex.sequence(ctx, store, c.Then, thenLoc, pol)
		results := append(taken.results, ex.notRun(c.Else, elseLoc, ReasonBranchNotTaken)...)
		return results, taken.state, reason
	}

	results := ex.notRun(c.Then, thenLoc, ReasonBranchNotTaken)
	if len(c.Else) == 0 {
		if reason == "" {
			reason = fmt.Sprintf("condition %s is false and there is no else branch", c.If)
		}
		return results, StateSkipped, reason
	}
	taken := ex.sequence(ctx, store, c.Else, elseLoc, pol)
	return append(results, taken.results...), taken.state, reason
}

// nestedBranch keeps the depth of body and names the branch in the path.
func (l location) nestedBranch(branch string) location {
	return location{phase: l.phase, prefix: l.prefix + "/" + branch, depth: l.depth}
}

func (ex *execution) loop(ctx context.Context, store *vars.Store, st *scenario.Step, body location, pol policy, log *logrus.Entry) ([]*StepResult, State, string) {
	l := st.Loop
	items, err := ex.items(store, l.Items)
	if err != nil {
		return nil, StateError, "loop items: " + err.Error()
	}
	if len(items) == 0 {
		return nil, StateSkipped, "no items"
	}

	var (
		results []*StepResult
		state   State
		reason  string
	)
	for i, item := range items {
		iter := body.nestedBranch(strconv.Itoa(i))
		if ctx.Err() != nil {
			results = append(results, ex.notRun(l.Steps, iter, ReasonCancelled)...)
			continue
		}

		store.EnterStepScope()
		if err := store.Set(vars.ScopeStep, l.Variable, item); err != nil {
			store.ExitStepScope()
			return results, StateError, err.Error()
		}
		out := ex.sequence(ctx, store, l.Steps, iter, pol)
		store.ExitStepScope()

		results = append(results, out.results...)
		state = worse(state, out.state)
		log.WithFields(logrus.Fields{"iteration": i, "state": out.state}).Debug("loop iteration finished")

		if ex.r.config.LoopFailFast && out.state.severity() >= StateFailed.severity() && i+1 < len(items) {
			reason = fmt.Sprintf("stopped after iteration %d of %d", i+1, len(items))
			break
		}
	}
	return results, state, reason
}

func (ex *execution) parallel(ctx context.Context, store *vars.Store, st *scenario.Step, body location, pol policy, log *logrus.Entry) ([]*StepResult, State, string) {
	p := st.Parallel
	items, err := ex.items(store, p.Items)
	if err != nil {
		return nil, StateError, "parallel items: " + err.Error()
	}
	if len(items) == 0 {
		return nil, StateSkipped, "no items"
	}

	workers := p.MaxWorkers
	if workers <= 0 {
		workers = ex.r.config.Concurrency
	}
	if workers <= 0 {
		workers = DefaultConcurrency
	}

	var (
		results = make([][]*StepResult, len(items))
		states  = make([]State, len(items))
		forks   = make([]*vars.Store, len(items))
	)

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			iter := body.nestedBranch(strconv.Itoa(i))
			if ctx.Err() != nil {
				results[i] = ex.notRun(p.Steps, iter, ReasonCancelled)
				return nil
			}

			fork := store.Fork()
			fork.EnterStepScope()
			if err := fork.Set(vars.ScopeStep, p.Variable, item); err != nil {
				states[i] = StateError
				return nil
			}
			out := ex.sequence(ctx, fork, p.Steps, iter, pol)
			fork.ExitStepScope()

			results[i], states[i], forks[i] = out.results, out.state, fork
			return nil
		})
	}
	_ = g.Wait()

	// Results and scenario writes land in source order, whatever order the
	// workers finished in.
	var (
		flat  []*StepResult
		state State
	)
	for i := range items {
		if forks[i] != nil {
			store.Merge(forks[i])
		}
		flat = append(flat, results[i]...)
		state = worse(state, states[i])
	}
	log.WithFields(logrus.Fields{"items": len(items), "workers": workers}).Debug("parallel block finished")
	return flat, state, ""
}

// items resolves the item source of a loop or parallel block to a list.
func (ex *execution) items(store *vars.Store, raw any) ([]any, error) {
	v, err := store.ResolveValue(raw)
	if err != nil {
		return nil, err
	}
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return list, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("resolved to %T, not a list", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
