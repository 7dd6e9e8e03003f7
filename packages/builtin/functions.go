package builtin

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Func is a built-in template function. Arguments arrive already resolved.
type Func func(args []any) (any, error)

// ErrUnknownFunction is returned by Call for names outside the registry.
type ErrUnknownFunction struct {
	Name string
}

func (e *ErrUnknownFunction) Error() string {
	return fmt.Sprintf("unknown function: %s", e.Name)
}

type Registry struct {
	funcs map[string]Func
	now   func() time.Time
}

func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
		now:   time.Now,
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["timestamp"] = r.funcTimestamp
	r.funcs["uuid"] = funcUUID
	r.funcs["random_string"] = funcRandomString
	r.funcs["random_int"] = funcRandomInt
	r.funcs["date"] = r.funcDate
	r.funcs["md5"] = funcMD5
}

// Has reports whether name is a registered function.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Names returns the registered function names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

func (r *Registry) Call(name string, args []any) (any, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return nil, &ErrUnknownFunction{Name: name}
	}
	return fn(args)
}

// ParseArgs splits a raw argument list on top-level commas, honouring quotes.
// Quoted arguments keep their quotes so callers can tell literals from
// variable references.
func ParseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQuote && (ch == '"' || ch == '\'') {
			inQuote = true
			quoteChar = ch
			current.WriteByte(ch)
		} else if inQuote && ch == quoteChar {
			inQuote = false
			quoteChar = 0
			current.WriteByte(ch)
		} else if !inQuote && ch == ',' {
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteByte(ch)
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func (r *Registry) funcTimestamp(_ []any) (any, error) {
	return r.now().Unix(), nil
}

func funcUUID(_ []any) (any, error) {
	return uuid.New().String(), nil
}

func funcRandomString(args []any) (any, error) {
	length := 10
	if len(args) >= 1 {
		v, err := intArg("random_string", args[0])
		if err != nil {
			return nil, err
		}
		length = v
	}
	if length < 0 {
		return nil, fmt.Errorf("random_string: negative length %d", length)
	}
	return randomString(length, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"), nil
}

func funcRandomInt(args []any) (any, error) {
	min, max := 0, 100
	if len(args) >= 1 {
		v, err := intArg("random_int", args[0])
		if err != nil {
			return nil, err
		}
		min = v
	}
	if len(args) >= 2 {
		v, err := intArg("random_int", args[1])
		if err != nil {
			return nil, err
		}
		max = v
	}
	if max < min {
		return nil, fmt.Errorf("random_int: max %d is less than min %d", max, min)
	}
	return rand.Intn(max-min+1) + min, nil
}

func (r *Registry) funcDate(args []any) (any, error) {
	format := "2006-01-02"
	if len(args) >= 1 {
		format = ConvertStrftime(fmt.Sprintf("%v", args[0]))
	}
	return r.now().Format(format), nil
}

func funcMD5(args []any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("md5: missing argument")
	}
	hash := md5.Sum([]byte(fmt.Sprintf("%v", args[0])))
	return hex.EncodeToString(hash[:]), nil
}

var strftimeTokens = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// ConvertStrftime turns a strftime-style format into a Go layout. Strings
// without any % directive are treated as Go layouts already.
func ConvertStrftime(format string) string {
	if !strings.Contains(format, "%") {
		return format
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			if layout, ok := strftimeTokens[format[i+1]]; ok {
				b.WriteString(layout)
				i++
				continue
			}
		}
		b.WriteByte(format[i])
	}
	return b.String()
}

func intArg(fn string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%s: argument %q is not a valid integer", fn, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s: argument %v is not a valid integer", fn, v)
	}
}

func randomString(length int, charset string) string {
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
