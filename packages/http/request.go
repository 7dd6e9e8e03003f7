package http

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values
	// Body is the resolved body: a string, raw bytes or a structured value
	// that is sent as JSON.
	Body    any
	Timeout time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
		Query:   make(url.Values),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// HasHeader reports whether a header is set, ignoring case.
func (r *Request) HasHeader(key string) bool {
	for k := range r.Headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) AddQueryParam(key, value string) *Request {
	r.Query.Add(key, value)
	return r
}

// FullURL is URL with the query parameters merged in.
func (r *Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	for k, values := range r.Query {
		for _, v := range values {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Auth describes credentials applied to every request of a scenario.
type Auth struct {
	Type     string `json:"type" yaml:"type"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// Name, In and Value configure API key auth. In is "header" or "query".
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	In    string `json:"in,omitempty" yaml:"in,omitempty"`
	Value string `json:"value,omitempty" yaml:"value,omitempty"`
}

// Apply adds the credentials to r. Headers the request already carries are
// left alone.
func (a *Auth) Apply(r *Request) {
	if a == nil {
		return
	}

	switch strings.ToLower(a.Type) {
	case "bearer", "http", "http_bearer", "":
		if a.Token != "" && !r.HasHeader("Authorization") {
			r.SetHeader("Authorization", "Bearer "+a.Token)
		}
	case "basic", "http_basic":
		if !r.HasHeader("Authorization") {
			creds := a.Username + ":" + a.Password
			r.SetHeader("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
		}
	case "apikey", "api_key":
		if a.Name == "" {
			return
		}
		if strings.EqualFold(a.In, "query") {
			if r.Query.Get(a.Name) == "" {
				r.Query.Set(a.Name, a.Value)
			}
			return
		}
		if !r.HasHeader(a.Name) {
			r.SetHeader(a.Name, a.Value)
		}
	}
}

// Template is the unresolved request part of a step. Any string leaf may
// contain ${...} placeholders.
type Template struct {
	Path    map[string]any `json:"path,omitempty" yaml:"path,omitempty"`
	Query   map[string]any `json:"query,omitempty" yaml:"query,omitempty"`
	Headers map[string]any `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    any            `json:"body,omitempty" yaml:"body,omitempty"`
}

// Resolver substitutes placeholders. *vars.Store satisfies it.
type Resolver interface {
	ResolveTemplate(text string) (string, error)
	ResolveValue(v any) (any, error)
}

var pathParamPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// BuildRequest resolves every templated field of a step into a concrete
// request. It never touches the network.
func BuildRequest(baseURL, method, pathTemplate string, tmpl Template, resolver Resolver) (*Request, error) {
	path, err := resolver.ResolveTemplate(pathTemplate)
	if err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}

	path, err = substitutePathParams(path, tmpl.Path, resolver)
	if err != nil {
		return nil, err
	}

	fullURL, err := JoinURL(baseURL, path)
	if err != nil {
		return nil, err
	}

	req := NewRequest(strings.ToUpper(method), fullURL)

	for _, key := range sortedKeys(tmpl.Query) {
		value, err := resolver.ResolveValue(tmpl.Query[key])
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", key, err)
		}
		for _, v := range queryValues(value) {
			req.AddQueryParam(key, v)
		}
	}

	for _, key := range sortedKeys(tmpl.Headers) {
		value, err := resolver.ResolveValue(tmpl.Headers[key])
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", key, err)
		}
		req.SetHeader(key, stringify(value))
	}

	if tmpl.Body != nil {
		body, err := resolver.ResolveValue(tmpl.Body)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		req.SetBody(body)
		switch body.(type) {
		case map[string]any, []any:
			if !req.HasHeader("Content-Type") {
				req.SetHeader("Content-Type", "application/json")
			}
		}
	}

	return req, nil
}

func substitutePathParams(path string, params map[string]any, resolver Resolver) (string, error) {
	var firstErr error
	out := pathParamPattern.ReplaceAllStringFunc(path, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := match[1 : len(match)-1]
		raw, ok := params[name]
		if !ok {
			firstErr = fmt.Errorf("missing path parameter %q", name)
			return match
		}
		value, err := resolver.ResolveValue(raw)
		if err != nil {
			firstErr = fmt.Errorf("path parameter %s: %w", name, err)
			return match
		}
		return url.PathEscape(stringify(value))
	})
	return out, firstErr
}

// JoinURL prefixes a relative path with baseURL. Absolute URLs pass through.
func JoinURL(baseURL, path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if baseURL == "" {
		return "", fmt.Errorf("no base_url configured for relative path %s", path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(baseURL, "/") + path, nil
}

func queryValues(v any) []string {
	if list, ok := v.([]any); ok {
		out := make([]string, len(list))
		for i, item := range list {
			out[i] = stringify(item)
		}
		return out
	}
	return []string{stringify(v)}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		if data, err := EncodeBody(t); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", t)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
