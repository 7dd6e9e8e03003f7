package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/assertions"
	"github.com/abdul-hamid-achik/flowspec/packages/capture"
	"github.com/abdul-hamid-achik/flowspec/packages/core/vars"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/sirupsen/logrus"
)

// call issues the step's request, retrying failed attempts, and returns the
// environment of the last attempt.
func (ex *execution) call(ctx context.Context, store *vars.Store, st *scenario.Step, res *StepResult, log *logrus.Entry) *stepEnv {
	retries := ex.s.Config.Retry
	if st.Retry != nil {
		retries = *st.Retry
	}
	delay := st.RetryDelay
	if delay <= 0 {
		delay = ex.s.Config.RetryDelay
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	var env *stepEnv
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		env = ex.attempt(ctx, store, st, res, log)
		if res.State == StatePassed || res.State == StateSkipped || attempt > retries {
			break
		}
		if ctx.Err() != nil {
			break
		}
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"state":   res.State,
			"reason":  res.Reason,
		}).Warn("retrying step")
		if err := sleep(ctx, delay); err != nil {
			break
		}
	}
	if env == nil {
		env = newStepEnv(store, nil, nil)
	}
	return env
}

// attempt performs one request and evaluates its extractions and assertions.
func (ex *execution) attempt(ctx context.Context, store *vars.Store, st *scenario.Step, res *StepResult, log *logrus.Entry) *stepEnv {
	res.Request, res.StatusCode, res.Headers, res.Body = nil, 0, nil, nil
	res.Extracted, res.Missed, res.Assertions = nil, nil, nil
	res.Reason, res.Err = "", nil

	delay := st.Delay
	if delay <= 0 {
		delay = ex.s.Config.Delay
	}
	if err := sleep(ctx, delay); err != nil {
		ex.abort(res, err)
		return nil
	}

	req, err := http.BuildRequest(ex.baseURL, st.Method, st.Path, st.Request, store)
	if err != nil {
		res.State, res.Reason, res.Err = StateError, "request: "+err.Error(), err
		return nil
	}
	if err := ex.decorate(req, store); err != nil {
		res.State, res.Reason, res.Err = StateError, "request: "+err.Error(), err
		return nil
	}
	req.Timeout = ex.timeout(st)
	res.Request = req

	if ex.limiter != nil {
		if err := ex.limiter.Wait(ctx); err != nil {
			ex.abort(res, err)
			return nil
		}
	}

	operation := st.Method + " " + st.Path
	sent := time.Now()
	resp, err := ex.transport.Do(ctx, req)
	if err != nil {
		ex.latency.Record(operation, time.Since(sent), true)
		if ctx.Err() != nil {
			ex.abort(res, err)
			return nil
		}
		res.State, res.Reason, res.Err = StateError, "transport: "+err.Error(), err
		return nil
	}
	ex.latency.Record(operation, resp.Duration, false)

	extractor := capture.NewExtractor(resp)
	res.StatusCode = resp.StatusCode
	res.Headers = resp.Headers
	res.Body = extractor.Body()
	env := newStepEnv(store, resp, res.Body)

	extracted, err := extractor.ExtractAll(st.Extract)
	if extracted != nil {
		for _, pair := range extracted.Pairs {
			scope, _ := vars.ParseScope(pair.Scope)
			if serr := store.Set(scope, pair.Name, pair.Value); serr != nil && err == nil {
				err = fmt.Errorf("storing %s: %w", pair.Name, serr)
			}
		}
		res.Extracted = extracted.Pairs
		res.Missed = extracted.Missed
	}
	if len(res.Missed) > 0 {
		log.WithField("missed", res.Missed).Warn("optional extraction found nothing")
	}
	if err != nil {
		res.State, res.Reason, res.Err = StateError, err.Error(), err
		return env
	}

	res.Assertions = ex.asserts.EvaluateAll(st.Assert, env)
	switch failed := assertions.FirstFailure(res.Assertions); {
	case failed != nil:
		res.State = StateFailed
		res.Reason = fmt.Sprintf("assertion failed: %s", failed.Expression)
		if failed.Message != "" {
			res.Reason += " (" + failed.Message + ")"
		}
	case len(st.Assert) == 0 && ex.r.config.RequireSuccessStatus && !resp.IsSuccess():
		res.State = StateFailed
		res.Reason = fmt.Sprintf("status %d not in 2xx", resp.StatusCode)
	case len(res.Missed) > 0 && ex.r.config.OptionalMissPolicy == MissSkip:
		res.State = StateSkipped
		res.Reason = "optional extraction missed: " + strings.Join(res.Missed, ", ")
	default:
		res.State = StatePassed
	}
	return env
}

// abort marks a step interrupted by cancellation or a deadline.
func (ex *execution) abort(res *StepResult, err error) {
	res.State, res.Err = StateError, err
	if errors.Is(err, context.Canceled) {
		res.Reason = ReasonCancelled
		return
	}
	res.Reason = "aborted: " + err.Error()
}

// decorate applies scenario headers and credentials. Headers set by the step
// itself always win.
func (ex *execution) decorate(req *http.Request, store *vars.Store) error {
	cfg := ex.s.Config
	keys := make([]string, 0, len(cfg.Headers))
	for k := range cfg.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if req.HasHeader(k) {
			continue
		}
		value, err := store.ResolveValue(cfg.Headers[k])
		if err != nil {
			return fmt.Errorf("header %s: %w", k, err)
		}
		req.SetHeader(k, vars.Stringify(value))
	}

	if cfg.Auth != nil {
		auth, err := resolveAuth(cfg.Auth, store)
		if err != nil {
			return err
		}
		auth.Apply(req)
	}

	if token := ex.r.config.AuthToken; token != "" && !req.HasHeader("Authorization") {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return nil
}

func resolveAuth(a *http.Auth, store *vars.Store) (*http.Auth, error) {
	out := *a
	for _, field := range []*string{&out.Token, &out.Username, &out.Password, &out.Value} {
		v, err := store.ResolveTemplate(*field)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		*field = v
	}
	return &out, nil
}

func (ex *execution) timeout(st *scenario.Step) time.Duration {
	switch {
	case st.Timeout > 0:
		return st.Timeout
	case ex.s.Config.Timeout > 0:
		return ex.s.Config.Timeout
	default:
		return ex.r.config.Timeout
	}
}
