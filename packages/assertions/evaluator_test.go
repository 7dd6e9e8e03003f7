package assertions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/flowspec/packages/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv map[string]any

func (m mapEnv) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m mapEnv) ResolvePlaceholder(raw string) (any, error) {
	name := strings.TrimSpace(raw[2 : len(raw)-1])
	if v, ok := m[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("undefined variable %s", name)
}

func TestEvaluator_EvaluateAll_KeepsGoingAfterFailure(t *testing.T) {
	env := mapEnv{
		"status_code": 200,
		"response":    map[string]any{"data": map[string]any{"name": "Ada"}},
	}

	results := NewEvaluator().EvaluateAll([]string{
		"status_code == 200",
		"response.data.id != null",
		"response.data.name == 'Ada'",
		"response.data.missing.deep == 1",
	}, env)

	require.Len(t, results, 4)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
	assert.False(t, results[1].EvalFailed)
	assert.Equal(t, "response.data.id != null evaluated to false", results[1].Message)
	assert.True(t, results[2].Passed)
	assert.False(t, results[3].Passed)
	assert.True(t, results[3].EvalFailed)

	assert.False(t, AllPassed(results))
	assert.Equal(t, "response.data.id != null", FirstFailure(results).Expression)
	assert.True(t, AllPassed(results[:1]))
	assert.Nil(t, FirstFailure(results[:1]))
}

const userSchema = `{
  "type": "object",
  "required": ["id", "email"],
  "properties": {
    "id": {"type": "integer"},
    "email": {"type": "string"}
  }
}`

func TestJSONSchemaValidator(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "user.json"), []byte(userSchema), 0o644))

	v := NewJSONSchemaValidator(dir)

	t.Run("file reference", func(t *testing.T) {
		violations, err := v.Validate(map[string]any{"id": 1, "email": "a@b.c"}, "user.json")
		require.NoError(t, err)
		assert.Empty(t, violations)

		violations, err = v.Validate(map[string]any{"id": "x"}, "user.json")
		require.NoError(t, err)
		assert.Len(t, violations, 2)
	})

	t.Run("inline schema", func(t *testing.T) {
		violations, err := v.Validate([]any{1, 2}, `{"type": "array", "maxItems": 1}`)
		require.NoError(t, err)
		assert.Len(t, violations, 1)
	})

	t.Run("registered schema", func(t *testing.T) {
		v.Register("user", userSchema)
		violations, err := v.Validate(map[string]any{"email": "a@b.c"}, "user")
		require.NoError(t, err)
		require.Len(t, violations, 1)
		assert.Contains(t, violations[0], "id")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := v.Validate(map[string]any{}, "nope.json")
		assert.Error(t, err)
	})

	t.Run("path traversal", func(t *testing.T) {
		_, err := v.Validate(map[string]any{}, "../../etc/passwd")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "path traversal")
	})
}

func TestEvaluator_SchemaHelper(t *testing.T) {
	v := NewJSONSchemaValidator("")
	v.Register("user", userSchema)
	ev := NewEvaluator(WithSchemaValidator(v))

	env := mapEnv{"response": map[string]any{"data": map[string]any{"id": float64(7), "email": "x@y.z"}}}
	assert.True(t, ev.Evaluate("schema(response.data, 'user')", env).Passed)

	env = mapEnv{"response": map[string]any{"data": map[string]any{"id": float64(7)}}}
	res := ev.Evaluate("schema(response.data, 'user')", env)
	assert.False(t, res.Passed)
	assert.Contains(t, res.Message, "email")
}

func TestEvaluator_SharedExpressionEvaluator(t *testing.T) {
	shared := expr.NewEvaluator()
	ev := NewEvaluator(WithExpressionEvaluator(shared))
	assert.True(t, ev.Evaluate("1 < 2", mapEnv{}).Passed)
	_, err := shared.Compile("1 < 2")
	assert.NoError(t, err)
}
