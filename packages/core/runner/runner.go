package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/assertions"
	"github.com/abdul-hamid-achik/flowspec/packages/core/vars"
	"github.com/abdul-hamid-achik/flowspec/packages/expr"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
	"github.com/abdul-hamid-achik/flowspec/packages/metrics"
	"github.com/abdul-hamid-achik/flowspec/packages/scenario"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultConcurrency is the default worker count of a parallel block
	DefaultConcurrency = 5
	// DefaultRetryDelay is the default pause between retries of a step
	DefaultRetryDelay = time.Second
	// DefaultTeardownTimeout bounds teardown after a cancelled run
	DefaultTeardownTimeout = 30 * time.Second
)

// MissPolicy decides the state of a step whose optional extraction found
// nothing.
type MissPolicy string

const (
	MissPass MissPolicy = "pass"
	MissSkip MissPolicy = "skip"
)

// Transport sends a fully built request.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Sink receives the result of every scenario run.
type Sink interface {
	Report(result *ScenarioResult) error
}

type Config struct {
	// BaseURL is used when the scenario does not configure one.
	BaseURL string
	// Timeout is the per-request default when neither step nor scenario set one.
	Timeout time.Duration
	// ScenarioTimeout bounds setup and main steps; teardown still runs.
	ScenarioTimeout time.Duration
	TeardownTimeout time.Duration
	Insecure        bool
	FollowRedirect  bool

	// FailFast stops the main sequence after a failed step.
	FailFast bool
	// ContinueOnError keeps running main steps after a step in error.
	ContinueOnError bool
	// LoopFailFast stops a loop after its first failed iteration.
	LoopFailFast bool
	// RequireSuccessStatus fails a step that has no assertions when its
	// response is not 2xx. It is on in DefaultConfig; turn it off to pass
	// such steps once they complete without error.
	RequireSuccessStatus bool
	OptionalMissPolicy   MissPolicy
	Concurrency          int

	// Globals are published in the global scope before the run starts.
	Globals map[string]any
	// AuthToken is sent as a Bearer token unless a step sets Authorization.
	AuthToken string

	// WaitFor, when set, must succeed before setup starts.
	WaitFor *WaitFor
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		TeardownTimeout:      DefaultTeardownTimeout,
		FollowRedirect:       true,
		RequireSuccessStatus: true,
		OptionalMissPolicy:   MissPass,
		Concurrency:          DefaultConcurrency,
	}
}

type Runner struct {
	config    *Config
	transport Transport
	schema    expr.SchemaValidator
	sinks     []Sink
	log       *logrus.Logger
}

type Option func(*Runner)

// WithLogger sets the logger used for step transitions.
func WithLogger(log *logrus.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithTransport replaces the default HTTP client.
func WithTransport(t Transport) Option {
	return func(r *Runner) {
		r.transport = t
	}
}

// WithSink adds sinks that receive every ScenarioResult.
func WithSink(sinks ...Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, sinks...)
	}
}

// WithSchemaValidator sets the validator behind schema() in assertions.
func WithSchemaValidator(v expr.SchemaValidator) Option {
	return func(r *Runner) {
		r.schema = v
	}
}

func NewRunner(cfg *Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	r := &Runner{config: cfg}
	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = logrus.New()
		r.log.SetOutput(io.Discard)
	}
	if r.schema == nil {
		r.schema = assertions.NewJSONSchemaValidator("")
	}
	return r
}

// RunFile loads, validates and runs a scenario file.
func (r *Runner) RunFile(ctx context.Context, path string) (*ScenarioResult, error) {
	s, err := scenario.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading scenario: %w", err)
	}
	return r.Run(ctx, s)
}

// Run validates s and executes it: setup, main steps, then teardown. The
// returned error is reserved for scenarios that cannot start; step failures
// are reported in the result.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*ScenarioResult, error) {
	if err := scenario.Validate(s); err != nil {
		return nil, err
	}

	ex, err := r.newExecution(s)
	if err != nil {
		return nil, err
	}

	if err := ex.waitForService(ctx, r.config.WaitFor); err != nil {
		return nil, err
	}

	start := time.Now()
	log := r.log.WithField("scenario", s.Name)
	log.Info("scenario started")

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.config.ScenarioTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.ScenarioTimeout)
	}

	setup := ex.sequence(runCtx, ex.store, s.Setup, location{phase: scenario.PhaseSetup, prefix: string(scenario.PhaseSetup)}, setupPolicy)
	ex.collect(setup.results)

	main := location{phase: scenario.PhaseMain, prefix: string(scenario.PhaseMain)}
	if setup.state.severity() >= StateFailed.severity() {
		log.Warn("setup failed, main steps will not run")
		ex.collect(ex.notRun(s.Steps, main, ReasonSetupFailed))
	} else {
		steps := ex.sequence(runCtx, ex.store, s.Steps, main, r.mainPolicy())
		ex.collect(steps.results)
	}

	cancelled := runCtx.Err()
	cancel()

	// Teardown outlives cancellation of the run, bounded by its own timeout.
	tdTimeout := r.config.TeardownTimeout
	if tdTimeout <= 0 {
		tdTimeout = DefaultTeardownTimeout
	}
	tdCtx, tdCancel := context.WithTimeout(context.WithoutCancel(ctx), tdTimeout)
	teardown := ex.sequence(tdCtx, ex.store, s.Teardown, location{phase: scenario.PhaseTeardown, prefix: string(scenario.PhaseTeardown)}, teardownPolicy)
	tdCancel()
	ex.collect(teardown.results)

	result := ex.result(time.Since(start))
	if cancelled != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("run aborted: %v", cancelled))
		result.Passed = false
	}

	log.WithFields(logrus.Fields{
		"passed":   result.Counts.Passed,
		"failed":   result.Counts.Failed,
		"errors":   result.Counts.Error,
		"skipped":  result.Counts.Skipped,
		"duration": result.Duration,
	}).Info("scenario finished")

	for _, sink := range r.sinks {
		if err := sink.Report(result); err != nil {
			log.WithError(err).Warn("result sink failed")
			result.Errors = append(result.Errors, fmt.Sprintf("sink: %v", err))
		}
	}
	return result, nil
}

func (r *Runner) mainPolicy() policy {
	return policy{
		stopOnError:  !r.config.ContinueOnError,
		stopOnFailed: r.config.FailFast,
	}
}

// execution is the mutable state of one scenario run.
type execution struct {
	r         *Runner
	s         *scenario.Scenario
	store     *vars.Store
	transport Transport
	limiter   *rate.Limiter
	latency   *metrics.Latency
	asserts   *assertions.Evaluator
	exprs     *expr.Evaluator
	baseURL   string
	results   []*StepResult
}

func (r *Runner) newExecution(s *scenario.Scenario) (*execution, error) {
	ex := &execution{
		r:       r,
		s:       s,
		store:   vars.NewStore(),
		latency: metrics.NewLatency(),
		exprs:   expr.NewEvaluator(expr.WithSchemaValidator(r.schema)),
	}
	ex.asserts = assertions.NewEvaluator(assertions.WithExpressionEvaluator(ex.exprs))

	ex.transport = r.transport
	if ex.transport == nil {
		verify := !r.config.Insecure
		if s.Config.VerifyTLS != nil && !*s.Config.VerifyTLS {
			verify = false
		}
		opts := []http.ClientOption{
			http.WithValidateSSL(verify),
			http.WithFollowRedirects(r.config.FollowRedirect),
		}
		if r.config.Timeout > 0 {
			opts = append(opts, http.WithTimeout(r.config.Timeout))
		}
		ex.transport = http.NewClient(opts...)
	}

	if s.Config.Rate > 0 {
		ex.limiter = rate.NewLimiter(rate.Limit(s.Config.Rate), 1)
	}

	// Scenario config keys are defaults; runner globals from the command
	// line or environment override them.
	if err := ex.store.SetAll(vars.ScopeGlobal, s.Config.Extra); err != nil {
		return nil, err
	}
	if err := ex.store.SetAll(vars.ScopeGlobal, r.config.Globals); err != nil {
		return nil, err
	}
	ex.baseURL = s.Config.BaseURL
	if ex.baseURL == "" {
		ex.baseURL = r.config.BaseURL
	}
	if ex.baseURL != "" {
		if err := ex.store.Set(vars.ScopeGlobal, "base_url", ex.baseURL); err != nil {
			return nil, err
		}
	}
	ex.store.Seal()
	return ex, nil
}

func (ex *execution) collect(results []*StepResult) {
	ex.results = append(ex.results, results...)
}

func (ex *execution) result(d time.Duration) *ScenarioResult {
	res := &ScenarioResult{
		Name:     ex.s.Name,
		File:     ex.s.File,
		Results:  ex.results,
		Duration: d,
		Latency:  ex.latency.Summary(),
		Snapshot: ex.store.Snapshot(),
	}
	for _, sr := range ex.results {
		res.Counts.add(sr.State)
	}
	res.Passed = res.Counts.Failed == 0 && res.Counts.Error == 0
	return res
}
