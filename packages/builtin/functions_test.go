package builtin

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Call(t *testing.T) {
	r := NewRegistry()
	r.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC) }

	t.Run("timestamp", func(t *testing.T) {
		v, err := r.Call("timestamp", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1709993106), v)
	})

	t.Run("uuid", func(t *testing.T) {
		v, err := r.Call("uuid", nil)
		require.NoError(t, err)
		_, parseErr := uuid.Parse(v.(string))
		assert.NoError(t, parseErr)
	})

	t.Run("random_string length", func(t *testing.T) {
		v, err := r.Call("random_string", []any{12})
		require.NoError(t, err)
		assert.Len(t, v.(string), 12)
	})

	t.Run("random_string default length", func(t *testing.T) {
		v, err := r.Call("random_string", nil)
		require.NoError(t, err)
		assert.Len(t, v.(string), 10)
	})

	t.Run("random_int in range", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			v, err := r.Call("random_int", []any{"3", 5})
			require.NoError(t, err)
			n := v.(int)
			assert.GreaterOrEqual(t, n, 3)
			assert.LessOrEqual(t, n, 5)
		}
	})

	t.Run("random_int inverted bounds", func(t *testing.T) {
		_, err := r.Call("random_int", []any{10, 1})
		assert.Error(t, err)
	})

	t.Run("date strftime", func(t *testing.T) {
		v, err := r.Call("date", []any{"%Y/%m/%d %H:%M"})
		require.NoError(t, err)
		assert.Equal(t, "2024/03/09 14:05", v)
	})

	t.Run("date default", func(t *testing.T) {
		v, err := r.Call("date", nil)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-09", v)
	})

	t.Run("md5", func(t *testing.T) {
		v, err := r.Call("md5", []any{"hello"})
		require.NoError(t, err)
		assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", v)
	})

	t.Run("unknown function", func(t *testing.T) {
		_, err := r.Call("sha1", []any{"x"})
		var unknown *ErrUnknownFunction
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "sha1", unknown.Name)
	})
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"10", []string{"10"}},
		{"1, 100", []string{"1", "100"}},
		{"'a,b', 2", []string{"'a,b'", "2"}},
		{`"x"`, []string{`"x"`}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseArgs(tt.input))
		})
	}
}

func TestConvertStrftime(t *testing.T) {
	assert.Equal(t, "2006-01-02", ConvertStrftime("%Y-%m-%d"))
	assert.Equal(t, "15:04:05", ConvertStrftime("%H:%M:%S"))
	assert.Equal(t, "2006-01-02T15:04:05Z07:00", ConvertStrftime("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "100%", ConvertStrftime("100%%"))
}
