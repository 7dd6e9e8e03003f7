package env

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPrefix selects the process environment variables published as
// globals, with the prefix removed.
const DefaultPrefix = "FLOWSPEC_VAR_"

// LoadDotEnv parses KEY=value lines. Blank lines and lines starting with #
// are skipped; anything after the first = is the value.
func LoadDotEnv(path string) (map[string]any, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}
	defer file.Close()

	result := make(map[string]any)
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		text = strings.TrimPrefix(text, "export ")

		key, value, found := strings.Cut(text, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("%s:%d: expected KEY=value", path, line)
		}
		result[key] = ParseValue(strings.TrimSpace(value))
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading env file: %w", err)
	}
	return result, nil
}

// ParseValue decodes raw as YAML, falling back to the raw text when it is
// empty, null or not valid YAML.
func ParseValue(raw string) any {
	if len(raw) >= 2 {
		if (raw[0] == '"' && raw[len(raw)-1] == '"') || (raw[0] == '\'' && raw[len(raw)-1] == '\'') {
			return raw[1 : len(raw)-1]
		}
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	if _, isMap := v.(map[string]any); isMap && !strings.HasPrefix(raw, "{") {
		// "a: b" is a sentence, not a mapping.
		return raw
	}
	return v
}

// ParsePairs decodes key=value pairs.
func ParsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q, want key=value", pair)
		}
		out[key] = ParseValue(raw)
	}
	return out, nil
}

// LoadSystemEnv returns the process environment variables that start with
// prefix, keyed by the rest of their name.
func LoadSystemEnv(prefix string) map[string]any {
	result := make(map[string]any)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
			continue
		}
		result[strings.TrimPrefix(key, prefix)] = ParseValue(value)
	}
	return result
}

// Globals merges prefixed environment variables, then each file in order,
// then pairs. Later sources win.
func Globals(prefix string, files []string, pairs []string) (map[string]any, error) {
	sources := []map[string]any{LoadSystemEnv(prefix)}
	for _, f := range files {
		vars, err := LoadDotEnv(f)
		if err != nil {
			return nil, err
		}
		sources = append(sources, vars)
	}
	flags, err := ParsePairs(pairs)
	if err != nil {
		return nil, err
	}
	sources = append(sources, flags)
	return MergeVariables(sources...), nil
}

// MergeVariables copies sources into one map; later sources win.
func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// Keys returns the names of vars in sorted order.
func Keys(vars map[string]any) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
