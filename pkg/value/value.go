// ABOUTME: Dynamically typed field value held by entities
// ABOUTME: Closed tagged union with equality, null-ness and JSON conversion

package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTime:
		return "time"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is an immutable field value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value
func Null() Value { return Value{} }

// Bool wraps a boolean
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int wraps a signed integer
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float wraps a float
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string
func String(s string) Value { return Value{kind: KindString, s: s} }

// Time wraps a timestamp, normalised to UTC
func Time(t time.Time) Value { return Value{kind: KindTime, t: t.UTC()} }

// Array wraps a list of values. The slice is copied.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arr: cp}
}

// Object wraps a string-keyed map of values. The map is copied.
func Object(fields map[string]Value) Value {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Value{kind: KindObject, obj: cp}
}

// Kind returns the variant tag
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the numeric value as float64; ints are widened
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }

// AsArray returns a copy of the array items
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	cp := make([]Value, len(v.arr))
	copy(cp, v.arr)
	return cp, true
}

// AsObject returns a copy of the object fields
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	cp := make(map[string]Value, len(v.obj))
	for k, item := range v.obj {
		cp[k] = item
	}
	return cp, true
}

// Equal compares two values structurally. Int and Float never compare equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindTime:
		return v.t.Equal(o.t)
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, item := range v.obj {
			other, ok := o.obj[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts the value to plain Go data suitable for encoding/json.
// Times are rendered as RFC 3339 strings.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// String renders a debug representation
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindArray:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.obj[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "unknown"
}

// FromInterface converts decoded JSON data (or plain Go scalars) into a Value
// without a field type. Integral json.Number values become ints.
func FromInterface(data any) (Value, error) {
	switch d := data.(type) {
	case nil:
		return Null(), nil
	case Value:
		return d, nil
	case bool:
		return Bool(d), nil
	case int:
		return Int(int64(d)), nil
	case int32:
		return Int(int64(d)), nil
	case int64:
		return Int(d), nil
	case float32:
		return Float(float64(d)), nil
	case float64:
		return Float(d), nil
	case json.Number:
		if i, err := d.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := d.Float64()
		if err != nil {
			return Null(), fmt.Errorf("invalid number %q", d.String())
		}
		return Float(f), nil
	case string:
		return String(d), nil
	case time.Time:
		return Time(d), nil
	case []any:
		items := make([]Value, len(d))
		for i, item := range d {
			conv, err := FromInterface(item)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = conv
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(d))
		for k, item := range d {
			conv, err := FromInterface(item)
			if err != nil {
				return Null(), fmt.Errorf("key %q: %w", k, err)
			}
			fields[k] = conv
		}
		return Value{kind: KindObject, obj: fields}, nil
	}
	return Null(), fmt.Errorf("unsupported type %T", data)
}

// integral reports whether f holds an exact int64
func integral(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
