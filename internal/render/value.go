package render

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
)

// scope is an immutable chain of bindings. A loop iteration gets a child
// holding only the loop variable; lookups fall through to the parent.
type scope struct {
	vars   map[string]any
	parent *scope
}

func newScope(vars map[string]any) *scope {
	return &scope{vars: vars}
}

func (s *scope) with(name string, value any) *scope {
	return &scope{vars: map[string]any{name: value}, parent: s}
}

// lookup resolves name through the chain. A nil value counts as unbound, and
// it still shadows any parent binding of the same name.
func (s *scope) lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, v != nil
		}
	}
	return nil, false
}

// formatValue renders a scalar as text. Sequences, maps and other composite
// values report ok=false.
func formatValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return formatFloat(x, 64), true
	case json.Number:
		return x.String(), true
	case []byte:
		return string(x), true
	case nil:
		return "", false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return formatFloat(rv.Float(), 32), true
	case reflect.Float64:
		return formatFloat(rv.Float(), 64), true
	default:
		return "", false
	}
}

func formatFloat(f float64, bitSize int) string {
	return strconv.FormatFloat(f, 'f', -1, bitSize)
}

// sequence returns the elements of an ordered sequence. Strings and byte
// slices are scalars, not sequences.
func sequence(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []byte, string, nil:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// truthy is true for true, non-empty strings, non-zero numbers and non-empty
// sequences or maps.
func truthy(v any) bool {
	if v == nil {
		return false
	}
	if items, ok := sequence(v); ok {
		return len(items) > 0
	}
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
