package vars

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/flowspec/packages/builtin"
)

var (
	placeholderPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)
	wholePattern       = regexp.MustCompile(`^\$\{([^{}]+)\}$`)
	funcCallPattern    = regexp.MustCompile(`^(\w+)\((.*)\)$`)
)

// TemplateError reports a placeholder that could not be resolved.
type TemplateError struct {
	Template    string
	Placeholder string
	Reason      string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("cannot resolve ${%s} in %q: %s", e.Placeholder, e.Template, e.Reason)
}

// Resolver substitutes ${...} placeholders against a Store.
type Resolver struct {
	store *Store
	funcs *builtin.Registry
}

func newResolver(s *Store) *Resolver {
	return &Resolver{
		store: s,
		funcs: builtin.NewRegistry(),
	}
}

func (r *Resolver) ResolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.resolveString(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := r.resolveString(item)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.ResolveValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func (r *Resolver) resolveString(text string) (any, error) {
	if m := wholePattern.FindStringSubmatch(text); m != nil {
		return r.evaluate(text, m[1])
	}
	return r.ResolveString(text)
}

// ResolveString replaces every placeholder in text with its string form.
func (r *Resolver) ResolveString(text string) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		value, err := r.evaluate(text, match[2:len(match)-1])
		if err != nil {
			firstErr = err
			return match
		}
		return Stringify(value)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *Resolver) evaluate(template, expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &TemplateError{Template: template, Placeholder: expr, Reason: "empty placeholder"}
	}

	if m := funcCallPattern.FindStringSubmatch(expr); m != nil {
		name := m[1]
		if !r.funcs.Has(name) {
			return nil, &TemplateError{Template: template, Placeholder: expr, Reason: "unknown function " + name}
		}
		var args []any
		for _, raw := range builtin.ParseArgs(m[2]) {
			args = append(args, r.argValue(raw))
		}
		value, err := r.funcs.Call(name, args)
		if err != nil {
			return nil, &TemplateError{Template: template, Placeholder: expr, Reason: err.Error()}
		}
		return value, nil
	}

	value, ok := r.store.Get(expr)
	if !ok {
		return nil, &TemplateError{Template: template, Placeholder: expr, Reason: "undefined variable"}
	}
	return value, nil
}

// argValue interprets a raw function argument: quoted text is a literal,
// numbers are numbers, known variables are looked up, anything else is
// passed through as text.
func (r *Resolver) argValue(raw string) any {
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return raw[1 : len(raw)-1]
		}
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if v, ok := r.store.Get(raw); ok {
		return v
	}
	return raw
}

// Stringify renders a value the way it appears when embedded in text.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// Walk follows a dotted path through maps and slices. Numeric segments index
// slices; negative indexes count from the end.
func Walk(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	current := v
	for _, part := range strings.Split(normalizePath(path), ".") {
		if part == "" {
			continue
		}
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, false
			}
			if idx < 0 {
				idx += len(node)
			}
			if idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// normalizePath turns items[0].id into items.0.id.
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.TrimPrefix(path, ".")
}

func splitPath(name string) (string, string) {
	name = normalizePath(name)
	idx := strings.Index(name, ".")
	if idx < 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}
