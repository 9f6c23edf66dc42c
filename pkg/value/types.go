// ABOUTME: Declared field types and their JSON decoders
// ABOUTME: Turns loosely typed JSON input into typed Values

package value

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TypeKind identifies a declared field type
type TypeKind uint8

const (
	TypeBool TypeKind = iota + 1
	TypeInt
	TypeFloat
	TypeString
	TypeDate
	TypeDateTime
	TypeEnum
	TypeJSON
	TypeArray
)

// DateLayout is the wire format of date fields
const DateLayout = "2006-01-02"

// Type is a declared field type. Types are immutable and comparable by String().
type Type struct {
	kind    TypeKind
	elem    *Type
	members []string
}

var (
	BoolType     = Type{kind: TypeBool}
	IntType      = Type{kind: TypeInt}
	FloatType    = Type{kind: TypeFloat}
	StringType   = Type{kind: TypeString}
	DateType     = Type{kind: TypeDate}
	DateTimeType = Type{kind: TypeDateTime}
	JSONType     = Type{kind: TypeJSON}
)

// EnumType declares a string type restricted to the given members
func EnumType(members ...string) Type {
	cp := make([]string, len(members))
	copy(cp, members)
	return Type{kind: TypeEnum, members: cp}
}

// ArrayOf declares a homogeneous list type
func ArrayOf(elem Type) Type {
	e := elem
	return Type{kind: TypeArray, elem: &e}
}

func (t Type) Kind() TypeKind { return t.kind }

// Elem returns the element type of an array type
func (t Type) Elem() (Type, bool) {
	if t.kind != TypeArray || t.elem == nil {
		return Type{}, false
	}
	return *t.elem, true
}

// Members returns the allowed members of an enum type
func (t Type) Members() []string {
	cp := make([]string, len(t.members))
	copy(cp, t.members)
	return cp
}

// IsZero reports whether the type was never declared
func (t Type) IsZero() bool { return t.kind == 0 }

func (t Type) String() string {
	switch t.kind {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypeEnum:
		return "enum(" + strings.Join(t.members, "|") + ")"
	case TypeJSON:
		return "json"
	case TypeArray:
		if t.elem == nil {
			return "array"
		}
		return "[]" + t.elem.String()
	}
	return "undeclared"
}

// DecodeError reports JSON input that does not match the declared type
type DecodeError struct {
	Want string
	Got  any
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("expected %s, got %s", e.Want, describe(e.Got))
}

func describe(data any) string {
	switch data.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case json.Number, float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", data)
}

// Decode converts decoded JSON data into a Value of this type.
// JSON null always decodes to the null Value.
func (t Type) Decode(data any) (Value, error) {
	if data == nil {
		return Null(), nil
	}
	if v, ok := data.(Value); ok {
		return t.Check(v)
	}
	switch t.kind {
	case TypeBool:
		if b, ok := data.(bool); ok {
			return Bool(b), nil
		}
	case TypeInt:
		if i, ok := toInt(data); ok {
			return Int(i), nil
		}
	case TypeFloat:
		if f, ok := toFloat(data); ok {
			return Float(f), nil
		}
	case TypeString:
		if s, ok := data.(string); ok {
			return String(s), nil
		}
	case TypeDate:
		switch d := data.(type) {
		case string:
			parsed, err := time.Parse(DateLayout, d)
			if err == nil {
				return Time(parsed), nil
			}
		case time.Time:
			y, m, day := d.UTC().Date()
			return Time(time.Date(y, m, day, 0, 0, 0, 0, time.UTC)), nil
		}
	case TypeDateTime:
		switch d := data.(type) {
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, d)
			if err == nil {
				return Time(parsed), nil
			}
		case time.Time:
			return Time(d), nil
		}
	case TypeEnum:
		if s, ok := data.(string); ok {
			for _, m := range t.members {
				if m == s {
					return String(s), nil
				}
			}
			return Null(), &DecodeError{Want: "one of " + strings.Join(t.members, ", "), Got: data}
		}
	case TypeJSON:
		return FromInterface(data)
	case TypeArray:
		items, ok := data.([]any)
		if !ok || t.elem == nil {
			break
		}
		out := make([]Value, len(items))
		for i, item := range items {
			conv, err := t.elem.Decode(item)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = conv
		}
		return Value{kind: KindArray, arr: out}, nil
	}
	return Null(), &DecodeError{Want: t.String(), Got: data}
}

// Check verifies that an already typed Value conforms to this type
func (t Type) Check(v Value) (Value, error) {
	if v.IsNull() {
		return v, nil
	}
	switch t.kind {
	case TypeBool:
		if v.kind == KindBool {
			return v, nil
		}
	case TypeInt:
		if v.kind == KindInt {
			return v, nil
		}
		if v.kind == KindFloat {
			if i, ok := integral(v.f); ok {
				return Int(i), nil
			}
		}
	case TypeFloat:
		if f, ok := v.AsFloat(); ok {
			return Float(f), nil
		}
	case TypeString:
		if v.kind == KindString {
			return v, nil
		}
	case TypeDate, TypeDateTime:
		if v.kind == KindTime {
			return v, nil
		}
		if v.kind == KindString {
			return t.Decode(v.s)
		}
	case TypeEnum:
		if v.kind == KindString {
			return t.Decode(v.s)
		}
	case TypeJSON:
		return v, nil
	case TypeArray:
		if v.kind != KindArray || t.elem == nil {
			break
		}
		out := make([]Value, len(v.arr))
		for i, item := range v.arr {
			conv, err := t.elem.Check(item)
			if err != nil {
				return Null(), fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = conv
		}
		return Value{kind: KindArray, arr: out}, nil
	}
	return Null(), &DecodeError{Want: t.String(), Got: v.Interface()}
}

func toInt(data any) (int64, bool) {
	switch d := data.(type) {
	case json.Number:
		if i, err := d.Int64(); err == nil {
			return i, true
		}
		if f, err := d.Float64(); err == nil {
			return integral(f)
		}
	case float64:
		return integral(d)
	case int:
		return int64(d), true
	case int64:
		return d, true
	case int32:
		return int64(d), true
	}
	return 0, false
}

func toFloat(data any) (float64, bool) {
	switch d := data.(type) {
	case json.Number:
		f, err := d.Float64()
		return f, err == nil
	case float64:
		return d, true
	case float32:
		return float64(d), true
	case int:
		return float64(d), true
	case int64:
		return float64(d), true
	case int32:
		return float64(d), true
	}
	return 0, false
}
