package capture

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/flowspec/packages/http"
	"github.com/tidwall/gjson"
)

type Source string

const (
	SourcePath   Source = "path"
	SourceRegex  Source = "regex"
	SourceHeader Source = "header"
	SourceCookie Source = "cookie"
)

// Rule describes one value to pull out of a response. Exactly one of Path,
// Regex, Header and Cookie is set.
type Rule struct {
	Name   string `json:"name" yaml:"name"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Regex  string `json:"regex,omitempty" yaml:"regex,omitempty"`
	Group  int    `json:"group,omitempty" yaml:"group,omitempty"`
	Header string `json:"header,omitempty" yaml:"header,omitempty"`
	Cookie string `json:"cookie,omitempty" yaml:"cookie,omitempty"`
	// Required defaults to true; a required miss fails the step.
	Required bool `json:"required" yaml:"required"`
	// Scope is "scenario" (default) or "step".
	Scope string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Sources lists the extraction methods set on the rule.
func (r Rule) Sources() []Source {
	var out []Source
	if r.Path != "" {
		out = append(out, SourcePath)
	}
	if r.Regex != "" {
		out = append(out, SourceRegex)
	}
	if r.Header != "" {
		out = append(out, SourceHeader)
	}
	if r.Cookie != "" {
		out = append(out, SourceCookie)
	}
	return out
}

// Source is the rule's extraction method, or "" when it has none or several.
func (r Rule) Source() Source {
	sources := r.Sources()
	if len(sources) != 1 {
		return ""
	}
	return sources[0]
}

// Expr is the path, pattern or name the rule looks up.
func (r Rule) Expr() string {
	switch r.Source() {
	case SourcePath:
		return r.Path
	case SourceRegex:
		return r.Regex
	case SourceHeader:
		return r.Header
	case SourceCookie:
		return r.Cookie
	}
	return ""
}

// ExtractionError reports a rule that produced no value. Missing is false
// when the rule itself is unusable, e.g. a pattern that does not compile.
type ExtractionError struct {
	Name    string
	Source  Source
	Expr    string
	Reason  string
	Missing bool
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %q (%s %s): %s", e.Name, e.Source, e.Expr, e.Reason)
}

type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
	isJSON   bool
	patterns map[string]*regexp.Regexp
}

// NewExtractor parses the response body once; every rule run through the
// extractor reuses the parsed document.
func NewExtractor(resp *http.Response) *Extractor {
	e := &Extractor{
		response: resp,
		patterns: make(map[string]*regexp.Regexp),
	}
	if len(resp.Body) > 0 && gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
		e.isJSON = true
	}
	return e
}

// Body returns the decoded JSON body, or the raw text when it is not JSON.
func (e *Extractor) Body() any {
	if e.isJSON {
		return nativeValue(e.bodyJSON)
	}
	if len(e.response.Body) == 0 {
		return nil
	}
	return e.response.BodyString()
}

func (e *Extractor) Extract(rule Rule) (any, error) {
	switch rule.Source() {
	case SourcePath:
		return e.extractFromBody(rule)
	case SourceRegex:
		return e.extractRegex(rule)
	case SourceHeader:
		value := e.response.Header(rule.Header)
		if value == "" {
			return nil, missing(rule, "header not present")
		}
		return value, nil
	case SourceCookie:
		value, ok := e.response.Cookie(rule.Cookie)
		if !ok {
			return nil, missing(rule, "cookie not set")
		}
		return value, nil
	default:
		return nil, &ExtractionError{Name: rule.Name, Reason: "rule needs exactly one of path, regex, header or cookie"}
	}
}

func (e *Extractor) extractFromBody(rule Rule) (any, error) {
	path := strings.TrimSpace(rule.Path)

	if !e.isJSON {
		if path == "$" && len(e.response.Body) > 0 {
			return e.response.BodyString(), nil
		}
		return nil, missing(rule, "response body is not JSON")
	}

	if !strings.HasPrefix(path, "$") {
		// Plain gjson syntax, e.g. items.#.id
		result := e.bodyJSON.Get(path)
		if !result.Exists() || result.Type == gjson.Null {
			return nil, missing(rule, "path not found")
		}
		return nativeValue(result), nil
	}

	segments, err := parsePath(path)
	if err != nil {
		return nil, &ExtractionError{Name: rule.Name, Source: SourcePath, Expr: rule.Path, Reason: err.Error()}
	}

	value, ok := selectPath(e.bodyJSON, segments)
	if !ok || value == nil {
		return nil, missing(rule, "path not found")
	}
	return value, nil
}

func (e *Extractor) extractRegex(rule Rule) (any, error) {
	re, ok := e.patterns[rule.Regex]
	if !ok {
		var err error
		re, err = regexp.Compile(rule.Regex)
		if err != nil {
			return nil, &ExtractionError{Name: rule.Name, Source: SourceRegex, Expr: rule.Regex, Reason: err.Error()}
		}
		e.patterns[rule.Regex] = re
	}

	if rule.Group < 0 || rule.Group > re.NumSubexp() {
		return nil, &ExtractionError{
			Name:   rule.Name,
			Source: SourceRegex,
			Expr:   rule.Regex,
			Reason: fmt.Sprintf("group %d out of range, pattern has %d", rule.Group, re.NumSubexp()),
		}
	}

	match := re.FindSubmatchIndex(e.response.Body)
	if match == nil || match[2*rule.Group] < 0 {
		return nil, missing(rule, "no match")
	}
	return string(e.response.Body[match[2*rule.Group]:match[2*rule.Group+1]]), nil
}

func missing(rule Rule, reason string) *ExtractionError {
	return &ExtractionError{Name: rule.Name, Source: rule.Source(), Expr: rule.Expr(), Reason: reason, Missing: true}
}

// Pair is one extracted variable.
type Pair struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
	Scope string `json:"scope,omitempty"`
}

// Result holds every value a set of rules produced, in rule order.
type Result struct {
	Pairs []Pair
	// Missed names optional rules that found nothing.
	Missed []string
}

// ExtractAll runs every rule against resp. The returned error is the first
// required miss or unusable rule; optional misses are only listed in Missed.
func ExtractAll(resp *http.Response, rules []Rule) (*Result, error) {
	return NewExtractor(resp).ExtractAll(rules)
}

// ExtractAll runs every rule against the extractor's response, reusing the
// parsed body.
func (e *Extractor) ExtractAll(rules []Rule) (*Result, error) {
	result := &Result{}
	var firstErr error

	for _, rule := range rules {
		value, err := e.Extract(rule)
		if err == nil {
			result.Pairs = append(result.Pairs, Pair{Name: rule.Name, Value: value, Scope: rule.Scope})
			continue
		}
		if ee, ok := err.(*ExtractionError); ok && ee.Missing && !rule.Required {
			result.Missed = append(result.Missed, rule.Name)
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	return result, firstErr
}

type segment struct {
	key      string
	index    int
	isIndex  bool
	wildcard bool
}

// parsePath splits a JSONPath subset ($, .key, [n], [-n], [*], ['key']).
func parsePath(path string) ([]segment, error) {
	rest := strings.TrimPrefix(path, "$")
	var segs []segment

	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			key := rest[:end]
			if key == "" {
				return nil, fmt.Errorf("empty key in path %s", path)
			}
			if key == "*" {
				segs = append(segs, segment{wildcard: true})
			} else {
				segs = append(segs, segment{key: key})
			}
			rest = rest[end:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("unclosed [ in path %s", path)
			}
			inner := strings.TrimSpace(rest[1:end])
			rest = rest[end+1:]
			switch {
			case inner == "*":
				segs = append(segs, segment{wildcard: true})
			case len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') && inner[len(inner)-1] == inner[0]:
				segs = append(segs, segment{key: inner[1 : len(inner)-1]})
			default:
				idx, err := strconv.Atoi(inner)
				if err != nil {
					return nil, fmt.Errorf("invalid index [%s] in path %s", inner, path)
				}
				segs = append(segs, segment{index: idx, isIndex: true})
			}
		default:
			// $key is treated as $.key
			rest = "." + rest
		}
	}
	return segs, nil
}

func selectPath(cur gjson.Result, segs []segment) (any, bool) {
	for i, seg := range segs {
		switch {
		case seg.wildcard:
			var elems []gjson.Result
			if cur.IsArray() {
				elems = cur.Array()
			} else if cur.IsObject() {
				cur.ForEach(func(_, v gjson.Result) bool {
					elems = append(elems, v)
					return true
				})
			} else {
				return nil, false
			}
			out := make([]any, 0, len(elems))
			for _, el := range elems {
				if v, ok := selectPath(el, segs[i+1:]); ok {
					out = append(out, v)
				}
			}
			return out, true
		case seg.isIndex:
			if !cur.IsArray() {
				return nil, false
			}
			arr := cur.Array()
			idx := seg.index
			if idx < 0 {
				idx += len(arr)
			}
			if idx < 0 || idx >= len(arr) {
				return nil, false
			}
			cur = arr[idx]
		default:
			if !cur.IsObject() {
				return nil, false
			}
			cur = cur.Get(escapeKey(seg.key))
			if !cur.Exists() {
				return nil, false
			}
		}
	}
	return nativeValue(cur), true
}

// nativeValue decodes a gjson result like Result.Value, except that integral
// numbers which fit in an int64 stay int64 so large ids survive re-injection.
func nativeValue(r gjson.Result) any {
	switch {
	case r.Type == gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return n
			}
		}
		return r.Float()
	case r.IsArray():
		out := make([]any, 0)
		r.ForEach(func(_, v gjson.Result) bool {
			out = append(out, nativeValue(v))
			return true
		})
		return out
	case r.IsObject():
		out := make(map[string]any)
		r.ForEach(func(k, v gjson.Result) bool {
			out[k.String()] = nativeValue(v)
			return true
		})
		return out
	default:
		return r.Value()
	}
}

func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
