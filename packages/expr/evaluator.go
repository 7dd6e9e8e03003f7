package expr

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// Env supplies values to an expression.
type Env interface {
	// Lookup returns the value of a root identifier.
	Lookup(name string) (any, bool)
	// ResolvePlaceholder resolves a ${...} reference, keeping its native type.
	ResolvePlaceholder(raw string) (any, error)
}

// SchemaValidator checks a value against a schema reference and returns
// the violations found.
type SchemaValidator interface {
	Validate(value any, schemaRef string) ([]string, error)
}

// EvalError is a non-fatal evaluation failure, typically a missing operand.
// An expression that fails this way counts as false.
type EvalError struct {
	Expr   string
	Reason string
	// Missing marks an operand that does not exist.
	Missing bool
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("cannot evaluate %s: %s", e.Expr, e.Reason)
}

// Outcome is the result of evaluating one expression.
type Outcome struct {
	Expression string
	Value      any
	Passed     bool
	Reason     string
	Err        error
}

type Evaluator struct {
	schema SchemaValidator
	cache  sync.Map
}

type Option func(*Evaluator)

// WithSchemaValidator enables the schema(value, ref) helper.
func WithSchemaValidator(v SchemaValidator) Option {
	return func(e *Evaluator) {
		e.schema = v
	}
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile parses src, reusing a cached tree when available.
func (e *Evaluator) Compile(src string) (Node, error) {
	if node, ok := e.cache.Load(src); ok {
		return node.(Node), nil
	}
	node, err := Parse(src)
	if err != nil {
		return nil, err
	}
	e.cache.Store(src, node)
	return node, nil
}

// Evaluate runs src against env. Evaluation never panics or aborts: syntax
// and evaluation failures are reported on the Outcome and count as false.
func (e *Evaluator) Evaluate(src string, env Env) Outcome {
	out := Outcome{Expression: src}

	node, err := e.Compile(src)
	if err != nil {
		out.Err = err
		out.Reason = err.Error()
		return out
	}

	st := &state{ev: e, env: env}
	value, err := st.eval(node)
	if err != nil {
		out.Err = err
		out.Reason = err.Error()
		return out
	}

	out.Value = value
	out.Passed = Truthy(value)
	if !out.Passed {
		if len(st.notes) > 0 {
			out.Reason = strings.Join(st.notes, "; ")
		} else {
			out.Reason = fmt.Sprintf("%s evaluated to %v", node.String(), formatValue(value))
		}
	}
	return out
}

// EvaluateBool is Evaluate reduced to its pass flag.
func (e *Evaluator) EvaluateBool(src string, env Env) bool {
	return e.Evaluate(src, env).Passed
}

type state struct {
	ev    *Evaluator
	env   Env
	notes []string
}

func (s *state) eval(node Node) (any, error) {
	switch n := node.(type) {
	case *Literal:
		return n.Value, nil
	case *Identifier:
		v, ok := s.env.Lookup(n.Name)
		if !ok {
			return nil, missing(n, "undefined variable "+n.Name)
		}
		return v, nil
	case *Placeholder:
		v, err := s.env.ResolvePlaceholder(n.Raw)
		if err != nil {
			return nil, missing(n, err.Error())
		}
		return v, nil
	case *Member:
		obj, err := s.eval(n.Object)
		if err != nil {
			return nil, err
		}
		return access(n, obj, n.Field)
	case *Index:
		obj, err := s.eval(n.Object)
		if err != nil {
			return nil, err
		}
		idx, err := s.eval(n.Index)
		if err != nil {
			return nil, err
		}
		return access(n, obj, stringOf(idx))
	case *ListLiteral:
		items := make([]any, len(n.Items))
		for i, item := range n.Items {
			v, err := s.eval(item)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return items, nil
	case *Unary:
		v, err := s.eval(n.Operand)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil
	case *Logical:
		return s.evalLogical(n)
	case *Binary:
		return s.evalBinary(n)
	case *Call:
		return s.evalCall(n)
	default:
		return nil, &EvalError{Expr: fmt.Sprintf("%v", node), Reason: "unsupported expression"}
	}
}

func (s *state) evalLogical(n *Logical) (any, error) {
	left, err := s.eval(n.Left)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case TokenAnd:
		if !Truthy(left) {
			return false, nil
		}
	case TokenOr:
		if Truthy(left) {
			return true, nil
		}
	}
	right, err := s.eval(n.Right)
	if err != nil {
		return nil, err
	}
	return Truthy(right), nil
}

func (s *state) evalBinary(n *Binary) (any, error) {
	left, lerr := s.eval(n.Left)
	right, rerr := s.eval(n.Right)

	if n.Op == TokenEq || n.Op == TokenNotEq {
		left, lerr = nullIfMissing(left, lerr, right, rerr)
		right, rerr = nullIfMissing(right, rerr, left, lerr)
	}
	if lerr != nil {
		return nil, lerr
	}
	if rerr != nil {
		return nil, rerr
	}

	switch n.Op {
	case TokenEq:
		return Equal(left, right), nil
	case TokenNotEq:
		return !Equal(left, right), nil
	case TokenGt, TokenGte, TokenLt, TokenLte:
		return compareOrdered(n, left, right)
	case TokenIn:
		found, err := membership(n, left, right)
		if err != nil {
			return nil, err
		}
		if n.Negated {
			return !found, nil
		}
		return found, nil
	default:
		return nil, &EvalError{Expr: n.String(), Reason: "unknown operator " + n.Op.String()}
	}
}

// nullIfMissing lets "x == null" and "x != null" work when x does not exist.
func nullIfMissing(v any, err error, other any, otherErr error) (any, error) {
	if isMissing(err) && otherErr == nil && other == nil {
		return nil, nil
	}
	return v, err
}

func (s *state) evalCall(n *Call) (any, error) {
	if n.Name == "exists" {
		if len(n.Args) != 1 {
			return nil, &EvalError{Expr: n.String(), Reason: "exists takes one argument"}
		}
		v, err := s.eval(n.Args[0])
		if err != nil {
			if isMissing(err) {
				return false, nil
			}
			return nil, err
		}
		return v != nil, nil
	}

	args := make([]any, len(n.Args))
	for i, arg := range n.Args {
		v, err := s.eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch n.Name {
	case "len", "length":
		if len(args) != 1 {
			return nil, &EvalError{Expr: n.String(), Reason: n.Name + " takes one argument"}
		}
		l := Length(args[0])
		if l < 0 {
			return nil, &EvalError{Expr: n.String(), Reason: fmt.Sprintf("cannot get length of %T", args[0])}
		}
		return float64(l), nil
	case "matches":
		if len(args) != 2 {
			return nil, &EvalError{Expr: n.String(), Reason: "matches takes two arguments"}
		}
		pattern := strings.Trim(stringOf(args[1]), "/")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, &EvalError{Expr: n.String(), Reason: "invalid regex pattern: " + err.Error()}
		}
		return re.MatchString(stringOf(args[0])), nil
	case "contains":
		if len(args) != 2 {
			return nil, &EvalError{Expr: n.String(), Reason: "contains takes two arguments"}
		}
		return membership(n, args[1], args[0])
	case "schema":
		if len(args) != 2 {
			return nil, &EvalError{Expr: n.String(), Reason: "schema takes two arguments"}
		}
		if s.ev.schema == nil {
			return nil, &EvalError{Expr: n.String(), Reason: "no schema validator configured"}
		}
		violations, err := s.ev.schema.Validate(args[0], stringOf(args[1]))
		if err != nil {
			return nil, &EvalError{Expr: n.String(), Reason: err.Error()}
		}
		if len(violations) > 0 {
			s.notes = append(s.notes, "schema validation failed: "+strings.Join(violations, "; "))
			return false, nil
		}
		return true, nil
	default:
		return nil, &EvalError{Expr: n.String(), Reason: "unknown function " + n.Name}
	}
}

func missing(node Node, reason string) error {
	return &EvalError{Expr: node.String(), Reason: reason, Missing: true}
}

func isMissing(err error) bool {
	e, ok := err.(*EvalError)
	return ok && e.Missing
}

func access(node Node, obj any, key string) (any, error) {
	switch v := obj.(type) {
	case map[string]any:
		val, ok := v[key]
		if !ok {
			return nil, missing(node, "no field "+key)
		}
		return val, nil
	case map[string]string:
		val, ok := v[key]
		if !ok {
			for k, item := range v {
				if strings.EqualFold(k, key) {
					return item, nil
				}
			}
			return nil, missing(node, "no field "+key)
		}
		return val, nil
	case []any:
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, missing(node, "non-numeric index "+key)
		}
		if idx < 0 {
			idx += len(v)
		}
		if idx < 0 || idx >= len(v) {
			return nil, missing(node, "index "+key+" out of range")
		}
		return v[idx], nil
	case nil:
		return nil, missing(node, "cannot access "+key+" of null")
	default:
		return nil, missing(node, fmt.Sprintf("cannot access %s of %T", key, obj))
	}
}

func compareOrdered(n *Binary, left, right any) (any, error) {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		switch n.Op {
		case TokenGt:
			return lf > rf, nil
		case TokenGte:
			return lf >= rf, nil
		case TokenLt:
			return lf < rf, nil
		default:
			return lf <= rf, nil
		}
	}

	ls, lstr := left.(string)
	rs, rstr := right.(string)
	if lstr && rstr {
		switch n.Op {
		case TokenGt:
			return ls > rs, nil
		case TokenGte:
			return ls >= rs, nil
		case TokenLt:
			return ls < rs, nil
		default:
			return ls <= rs, nil
		}
	}

	return nil, &EvalError{
		Expr:   n.String(),
		Reason: fmt.Sprintf("cannot compare non-numeric values: %v %s %v", formatValue(left), n.Op, formatValue(right)),
	}
}

func membership(node Node, item, container any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, v := range c {
			if Equal(item, v) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		_, ok := c[stringOf(item)]
		return ok, nil
	case map[string]string:
		_, ok := c[stringOf(item)]
		return ok, nil
	case string:
		return strings.Contains(c, stringOf(item)), nil
	default:
		return false, &EvalError{Expr: node.String(), Reason: fmt.Sprintf("'in' needs a list, object or string, got %T", container)}
	}
}

// Equal compares loosely: deep equality, numeric equality across types, then
// string form.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	if aok && bok {
		return af == bf
	}
	_, aBool := a.(bool)
	_, bBool := b.(bool)
	if aBool != bBool {
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// Truthy reports the boolean meaning of a value.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// Length returns the length of strings, lists and objects, or -1.
func Length(v any) int {
	switch val := v.(type) {
	case string:
		return utf8.RuneCountInString(val)
	case []any:
		return len(val)
	case map[string]any:
		return len(val)
	case nil:
		return -1
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
			return rv.Len()
		default:
			return -1
		}
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func stringOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	default:
		return stringOf(v)
	}
}
