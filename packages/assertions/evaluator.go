package assertions

import (
	"github.com/abdul-hamid-achik/flowspec/packages/expr"
)

// Result is the outcome of one assertion expression.
type Result struct {
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Message    string `json:"message,omitempty"`
	// Actual is the value the expression produced, when it produced one.
	Actual any `json:"actual,omitempty"`
	// EvalFailed marks an expression that could not be evaluated, as opposed
	// to one that evaluated to false.
	EvalFailed bool `json:"eval_failed,omitempty"`
}

type Evaluator struct {
	exprs *expr.Evaluator
}

type EvaluatorOption func(*Evaluator)

// WithSchemaValidator makes schema(value, ref) available to assertions.
func WithSchemaValidator(v expr.SchemaValidator) EvaluatorOption {
	return func(e *Evaluator) {
		e.exprs = expr.NewEvaluator(expr.WithSchemaValidator(v))
	}
}

// WithExpressionEvaluator shares an existing expression evaluator and its
// parse cache.
func WithExpressionEvaluator(ev *expr.Evaluator) EvaluatorOption {
	return func(e *Evaluator) {
		e.exprs = ev
	}
}

func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	if e.exprs == nil {
		e.exprs = expr.NewEvaluator()
	}
	return e
}

func (e *Evaluator) Evaluate(assertion string, env expr.Env) *Result {
	out := e.exprs.Evaluate(assertion, env)
	return &Result{
		Expression: assertion,
		Passed:     out.Passed,
		Message:    out.Reason,
		Actual:     out.Value,
		EvalFailed: out.Err != nil,
	}
}

// EvaluateAll runs every assertion in order. A failing assertion never stops
// the ones after it.
func (e *Evaluator) EvaluateAll(assertions []string, env expr.Env) []*Result {
	results := make([]*Result, len(assertions))
	for i, a := range assertions {
		results[i] = e.Evaluate(a, env)
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failed result, or nil.
func FirstFailure(results []*Result) *Result {
	for _, r := range results {
		if !r.Passed {
			return r
		}
	}
	return nil
}
