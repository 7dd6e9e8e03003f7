package scenario

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/flowspec/packages/capture"
	"github.com/abdul-hamid-achik/flowspec/packages/core/vars"
	"github.com/abdul-hamid-achik/flowspec/packages/expr"
	"github.com/hashicorp/go-multierror"
)

var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

// Defect is one structural problem, located by step path.
type Defect struct {
	Path    string
	Message string
}

func (d *Defect) Error() string {
	if d.Path == "" {
		return d.Message
	}
	return d.Path + ": " + d.Message
}

// ValidationError carries every defect found in a scenario.
type ValidationError struct {
	Scenario string
	Errs     *multierror.Error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scenario %q is invalid: %s", e.Scenario, e.Errs.Error())
}

func (e *ValidationError) Unwrap() error {
	return e.Errs
}

// Defects returns the individual problems in document order.
func (e *ValidationError) Defects() []*Defect {
	out := make([]*Defect, 0, len(e.Errs.Errors))
	for _, err := range e.Errs.Errors {
		if d, ok := err.(*Defect); ok {
			out = append(out, d)
		}
	}
	return out
}

func formatDefects(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = "  * " + err.Error()
	}
	return fmt.Sprintf("%d problem(s):\n%s", len(errs), strings.Join(lines, "\n"))
}

// Validate checks the whole scenario before anything runs and reports every
// defect at once.
func Validate(s *Scenario) error {
	v := &validator{}

	if strings.TrimSpace(s.Name) == "" {
		v.add("", "scenario has no name")
	}
	if len(s.Steps) == 0 {
		v.add(string(PhaseMain), "scenario has no steps")
	}
	if s.Config.Retry < 0 {
		v.add("config.retry", "must not be negative")
	}
	if s.Config.Rate < 0 {
		v.add("config.rate", "must not be negative")
	}

	v.sequence(string(PhaseSetup), s.Setup)
	v.sequence(string(PhaseMain), s.Steps)
	v.sequence(string(PhaseTeardown), s.Teardown)

	if v.errs == nil {
		return nil
	}
	v.errs.ErrorFormat = formatDefects
	return &ValidationError{Scenario: s.Name, Errs: v.errs}
}

type validator struct {
	errs *multierror.Error
}

func (v *validator) add(path, format string, args ...any) {
	v.errs = multierror.Append(v.errs, &Defect{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) sequence(prefix string, steps []*Step) {
	seen := make(map[string]bool, len(steps))
	for i, st := range steps {
		name := st.Name
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("#%d", i)
			v.add(prefix+"/"+name, "step has no name")
		} else if seen[name] {
			v.add(prefix+"/"+name, "duplicate step name %q at this level", name)
		}
		seen[name] = true
		v.step(prefix+"/"+name, st)
	}
}

func (v *validator) step(path string, st *Step) {
	if len(st.blocks) > 1 {
		v.add(path, "step declares more than one control block: %s", strings.Join(st.blocks, ", "))
	}

	if st.HasCall() {
		method, p := SplitAPI(st.API)
		switch {
		case method == "" || p == "":
			v.add(path, "api %q must look like \"METHOD /path\"", st.API)
		case !knownMethods[method]:
			v.add(path, "api %q uses unknown method %s", st.API, method)
		}
	} else if st.Kind == KindPlain {
		v.add(path, "step has no api")
	}

	if st.Retry != nil && *st.Retry < 0 {
		v.add(path, "retry must not be negative")
	}

	for i, rule := range st.Extract {
		v.extract(fmt.Sprintf("%s/extract[%d]", path, i), rule)
	}

	for i, a := range st.Assert {
		if _, err := expr.Parse(a); err != nil {
			v.add(fmt.Sprintf("%s/assert[%d]", path, i), "%v", err)
		}
	}

	switch st.Kind {
	case KindConditional:
		c := st.Condition
		if strings.TrimSpace(c.If) == "" {
			v.add(path+"/condition", "condition has no if expression")
		} else if _, err := expr.Parse(c.If); err != nil {
			v.add(path+"/condition", "%v", err)
		}
		if len(c.Then) == 0 {
			v.add(path+"/condition", "condition has no then steps")
		}
		v.sequence(path+"/then", c.Then)
		v.sequence(path+"/else", c.Else)
	case KindLoop:
		v.iteration(path+"/loop", st.Loop.Items, st.Loop.Variable, len(st.Loop.Steps))
		v.sequence(path+"/loop", st.Loop.Steps)
	case KindParallel:
		v.iteration(path+"/parallel", st.Parallel.Items, st.Parallel.Variable, len(st.Parallel.Steps))
		if st.Parallel.MaxWorkers < 0 {
			v.add(path+"/parallel", "max_workers must not be negative")
		}
		v.sequence(path+"/parallel", st.Parallel.Steps)
	}
}

func (v *validator) iteration(path string, items any, variable string, bodyLen int) {
	switch t := items.(type) {
	case nil:
		v.add(path, "items is required")
	case string:
		if strings.TrimSpace(t) == "" {
			v.add(path, "items is required")
		}
	case []any:
	default:
		v.add(path, "items must be a list or a placeholder, got %T", items)
	}
	if strings.TrimSpace(variable) == "" {
		v.add(path, "variable is required")
	}
	if bodyLen == 0 {
		v.add(path, "no steps to run")
	}
}

func (v *validator) extract(path string, rule capture.Rule) {
	if strings.TrimSpace(rule.Name) == "" {
		v.add(path, "extraction has no target variable name")
	}
	switch n := len(rule.Sources()); {
	case n == 0:
		v.add(path, "extraction needs one of path, regex, header or cookie")
	case n > 1:
		v.add(path, "extraction sets more than one method")
	}
	if rule.Regex != "" {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			v.add(path, "invalid regex: %v", err)
		} else if rule.Group < 0 || rule.Group > re.NumSubexp() {
			v.add(path, "group %d out of range, pattern has %d", rule.Group, re.NumSubexp())
		}
	}
	if _, err := vars.ParseScope(rule.Scope); err != nil || rule.Scope == vars.ScopeGlobal.String() {
		v.add(path, "scope must be scenario or step, got %q", rule.Scope)
	}
}
