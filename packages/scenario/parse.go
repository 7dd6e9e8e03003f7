package scenario

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/flowspec/packages/capture"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
	"gopkg.in/yaml.v3"
)

// ParseError reports a document whose structure cannot be decoded into a
// scenario.
type ParseError struct {
	File    string
	Path    string
	Message string
}

func (e *ParseError) Error() string {
	loc := e.Path
	if e.File != "" {
		loc = e.File + ": " + loc
	}
	if loc == "" {
		return e.Message
	}
	return loc + ": " + e.Message
}

var configKeys = map[string]bool{
	"base_url": true, "timeout": true, "retry": true, "retry_delay": true,
	"delay": true, "rate": true, "verify_tls": true, "headers": true, "auth": true,
}

// LoadFile reads a YAML or JSON scenario document and parses it.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	s, err := ParseBytes(data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.File = path
		}
		return nil, err
	}
	s.File = path
	return s, nil
}

// ParseBytes decodes a YAML or JSON document and parses it.
func ParseBytes(data []byte) (*Scenario, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Message: err.Error()}
	}

	root, ok := normalize(doc).(map[string]any)
	if !ok {
		return nil, &ParseError{Message: "document must be a mapping"}
	}
	return Parse(root)
}

// normalize converts the map[any]any nodes yaml produces for non-string keys.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}

// Parse decodes an already parsed document. The scenario may sit under a
// top-level "scenario" key or be the document itself.
func Parse(doc map[string]any) (*Scenario, error) {
	d := &decoder{}
	body := doc
	path := ""
	if raw, ok := doc["scenario"]; ok {
		path = "scenario"
		body = d.mapping(raw, path)
		if d.err != nil {
			return nil, d.err
		}
	}

	s := &Scenario{
		Name:        d.str(body["name"], join(path, "name")),
		Description: d.str(body["description"], join(path, "description")),
	}
	s.Config = d.config(body["config"], join(path, "config"))
	s.Setup = d.steps(body["setup"], join(path, "setup"))
	s.Steps = d.steps(body["steps"], join(path, "steps"))
	s.Teardown = d.steps(body["teardown"], join(path, "teardown"))

	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

// decoder keeps the first structural error so parsing code can stay linear.
type decoder struct {
	err error
}

func (d *decoder) fail(path, format string, args ...any) {
	if d.err == nil {
		d.err = &ParseError{Path: path, Message: fmt.Sprintf(format, args...)}
	}
}

func join(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func (d *decoder) mapping(v any, path string) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	m, ok := v.(map[string]any)
	if !ok {
		d.fail(path, "expected a mapping, got %T", v)
		return map[string]any{}
	}
	return m
}

func (d *decoder) list(v any, path string) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		d.fail(path, "expected a list, got %T", v)
		return nil
	}
}

func (d *decoder) str(v any, path string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int, int64, float64, bool:
		return fmt.Sprint(t)
	default:
		d.fail(path, "expected a string, got %T", v)
		return ""
	}
}

func (d *decoder) integer(v any, path string) int {
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		if t != float64(int(t)) {
			d.fail(path, "expected an integer, got %v", t)
		}
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			d.fail(path, "expected an integer, got %q", t)
		}
		return n
	default:
		d.fail(path, "expected an integer, got %T", v)
		return 0
	}
}

func (d *decoder) number(v any, path string) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			d.fail(path, "expected a number, got %q", t)
		}
		return f
	default:
		d.fail(path, "expected a number, got %T", v)
		return 0
	}
}

func (d *decoder) boolean(v any, path string) *bool {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return &t
	case string:
		b, err := strconv.ParseBool(t)
		if err != nil {
			d.fail(path, "expected a boolean, got %q", t)
			return nil
		}
		return &b
	default:
		d.fail(path, "expected a boolean, got %T", v)
		return nil
	}
}

// duration accepts seconds as a number or a Go duration string ("250ms").
func (d *decoder) duration(v any, path string) time.Duration {
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		return time.Duration(t) * time.Second
	case int64:
		return time.Duration(t) * time.Second
	case float64:
		return time.Duration(t * float64(time.Second))
	case string:
		if dur, err := time.ParseDuration(strings.TrimSpace(t)); err == nil {
			return dur
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
		d.fail(path, "invalid duration %q", t)
		return 0
	default:
		d.fail(path, "expected a duration, got %T", v)
		return 0
	}
}

func (d *decoder) config(v any, path string) Config {
	m := d.mapping(v, path)
	cfg := Config{
		BaseURL:    d.str(m["base_url"], join(path, "base_url")),
		Timeout:    d.duration(m["timeout"], join(path, "timeout")),
		Retry:      d.integer(m["retry"], join(path, "retry")),
		RetryDelay: d.duration(m["retry_delay"], join(path, "retry_delay")),
		Delay:      d.duration(m["delay"], join(path, "delay")),
		Rate:       d.number(m["rate"], join(path, "rate")),
		VerifyTLS:  d.boolean(m["verify_tls"], join(path, "verify_tls")),
		Extra:      make(map[string]any),
	}
	if h, ok := m["headers"]; ok {
		cfg.Headers = d.mapping(h, join(path, "headers"))
	}
	if a, ok := m["auth"]; ok {
		cfg.Auth = d.auth(a, join(path, "auth"))
	}
	for k, val := range m {
		if !configKeys[k] {
			cfg.Extra[k] = val
		}
	}
	return cfg
}

func (d *decoder) auth(v any, path string) *http.Auth {
	m := d.mapping(v, path)
	return &http.Auth{
		Type:     d.str(m["type"], join(path, "type")),
		Token:    d.str(m["token"], join(path, "token")),
		Username: d.str(m["username"], join(path, "username")),
		Password: d.str(m["password"], join(path, "password")),
		Name:     d.str(m["name"], join(path, "name")),
		In:       d.str(m["in"], join(path, "in")),
		Value:    d.str(m["value"], join(path, "value")),
	}
}

func (d *decoder) steps(v any, path string) []*Step {
	items := d.list(v, path)
	if items == nil {
		return nil
	}
	out := make([]*Step, 0, len(items))
	for i, item := range items {
		out = append(out, d.step(item, fmt.Sprintf("%s[%d]", path, i)))
	}
	return out
}

func (d *decoder) step(v any, path string) *Step {
	m := d.mapping(v, path)
	st := &Step{
		Name:       d.str(m["name"], join(path, "name")),
		API:        strings.TrimSpace(d.str(m["api"], join(path, "api"))),
		Assert:     d.assertions(m["assert"], join(path, "assert")),
		RetryDelay: d.duration(m["retry_delay"], join(path, "retry_delay")),
		Delay:      d.duration(m["delay"], join(path, "delay")),
		Timeout:    d.duration(m["timeout"], join(path, "timeout")),
	}
	if r, ok := m["retry"]; ok {
		n := d.integer(r, join(path, "retry"))
		st.Retry = &n
	}
	st.Method, st.Path = SplitAPI(st.API)
	st.Request = d.request(m["request"], join(path, "request"))
	st.Extract = d.extracts(m["extract"], join(path, "extract"))

	if c, ok := m["condition"]; ok {
		st.blocks = append(st.blocks, "condition")
		cm := d.mapping(c, join(path, "condition"))
		st.Condition = &Condition{
			If:   d.str(cm["if"], join(path, "condition.if")),
			Then: d.steps(cm["then"], join(path, "condition.then")),
			Else: d.steps(cm["else"], join(path, "condition.else")),
		}
	}
	if l, ok := m["loop"]; ok {
		st.blocks = append(st.blocks, "loop")
		lm := d.mapping(l, join(path, "loop"))
		st.Loop = &Loop{
			Items:    lm["items"],
			Variable: d.str(lm["variable"], join(path, "loop.variable")),
			Steps:    d.steps(lm["steps"], join(path, "loop.steps")),
		}
	}
	if p, ok := m["parallel"]; ok {
		st.blocks = append(st.blocks, "parallel")
		pm := d.mapping(p, join(path, "parallel"))
		st.Parallel = &Parallel{
			Items:      pm["items"],
			Variable:   d.str(pm["variable"], join(path, "parallel.variable")),
			MaxWorkers: d.integer(pm["max_workers"], join(path, "parallel.max_workers")),
			Steps:      d.steps(pm["steps"], join(path, "parallel.steps")),
		}
	}

	switch {
	case st.Condition != nil:
		st.Kind = KindConditional
	case st.Loop != nil:
		st.Kind = KindLoop
	case st.Parallel != nil:
		st.Kind = KindParallel
	default:
		st.Kind = KindPlain
	}
	return st
}

// SplitAPI splits "POST /orders/{id}" into its method and path. Malformed
// references return empty parts.
func SplitAPI(api string) (string, string) {
	fields := strings.Fields(api)
	if len(fields) != 2 {
		return "", ""
	}
	return strings.ToUpper(fields[0]), fields[1]
}

func (d *decoder) request(v any, path string) http.Template {
	m := d.mapping(v, path)
	tmpl := http.Template{Body: m["body"]}
	if p, ok := m["path"]; ok {
		tmpl.Path = d.mapping(p, join(path, "path"))
	}
	if q, ok := m["query"]; ok {
		tmpl.Query = d.mapping(q, join(path, "query"))
	}
	if h, ok := m["headers"]; ok {
		tmpl.Headers = d.mapping(h, join(path, "headers"))
	}
	return tmpl
}

func (d *decoder) assertions(v any, path string) []string {
	if s, ok := v.(string); ok {
		return []string{s}
	}
	items := d.list(v, path)
	out := make([]string, 0, len(items))
	for i, item := range items {
		out = append(out, d.str(item, fmt.Sprintf("%s[%d]", path, i)))
	}
	return out
}

func (d *decoder) extracts(v any, path string) []capture.Rule {
	items := d.list(v, path)
	out := make([]capture.Rule, 0, len(items))
	for i, item := range items {
		p := fmt.Sprintf("%s[%d]", path, i)
		m := d.mapping(item, p)
		rule := capture.Rule{
			Name:     d.str(m["name"], join(p, "name")),
			Path:     d.str(m["path"], join(p, "path")),
			Regex:    d.str(m["regex"], join(p, "regex")),
			Group:    d.integer(m["group"], join(p, "group")),
			Header:   d.str(m["header"], join(p, "header")),
			Cookie:   d.str(m["cookie"], join(p, "cookie")),
			Scope:    d.str(m["scope"], join(p, "scope")),
			Required: true,
		}
		if req := d.boolean(m["required"], join(p, "required")); req != nil {
			rule.Required = *req
		}
		if opt := d.boolean(m["optional"], join(p, "optional")); opt != nil && *opt {
			rule.Required = false
		}
		out = append(out, rule)
	}
	return out
}
