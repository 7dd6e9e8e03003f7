package runner

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/flowspec/packages/core/vars"
	"github.com/abdul-hamid-achik/flowspec/packages/http"
)

// stepEnv is what assertions and conditions see: the response of the current
// step under reserved names, then the variable store.
type stepEnv struct {
	store    *vars.Store
	reserved map[string]any
}

func newStepEnv(store *vars.Store, resp *http.Response, body any) *stepEnv {
	env := &stepEnv{store: store}
	if resp != nil {
		env.reserved = map[string]any{
			"status_code": resp.StatusCode,
			"response":    body,
			"body":        resp.BodyString(),
			"headers":     resp.Headers,
			"duration_ms": resp.DurationMs(),
		}
	}
	return env
}

func (e *stepEnv) Lookup(name string) (any, bool) {
	if v, ok := e.reserved[name]; ok {
		return v, true
	}
	return e.store.Get(name)
}

func (e *stepEnv) ResolvePlaceholder(raw string) (any, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "${"), "}"))
	root, rest := inner, ""
	if idx := strings.IndexAny(inner, ".["); idx >= 0 {
		root, rest = inner[:idx], inner[idx:]
	}
	if v, ok := e.reserved[root]; ok {
		out, found := vars.Walk(v, rest)
		if !found {
			return nil, fmt.Errorf("%s has no %s", root, strings.TrimPrefix(rest, "."))
		}
		return out, nil
	}
	return e.store.ResolveValue(raw)
}
