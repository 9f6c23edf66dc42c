// Package stage defines the unit of data flow threaded through pipelines.
package stage

import (
	"fmt"

	"github.com/nainya/entitycore/pkg/value"
)

// Kind tags the variant of a Stage
type Kind uint8

const (
	KindValue Kind = iota
	KindInvalid
	KindConditionTrue
	KindConditionFalse
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindInvalid:
		return "invalid"
	case KindConditionTrue:
		return "condition_true"
	case KindConditionFalse:
		return "condition_false"
	}
	return "unknown"
}

// Stage is an immutable pipeline result. Only non-invalid stages carry a value.
type Stage struct {
	kind   Kind
	value  value.Value
	reason string
}

// Value wraps a successfully computed value
func Value(v value.Value) Stage { return Stage{kind: KindValue, value: v} }

// Invalid marks a validation failure with a user facing reason
func Invalid(reason string) Stage { return Stage{kind: KindInvalid, reason: reason} }

// ConditionTrue records a passed predicate, carrying v forward unchanged
func ConditionTrue(v value.Value) Stage { return Stage{kind: KindConditionTrue, value: v} }

// ConditionFalse records a failed predicate, carrying v forward unchanged
func ConditionFalse(v value.Value) Stage { return Stage{kind: KindConditionFalse, value: v} }

func (s Stage) Kind() Kind { return s.kind }

// IsValid reports whether the stage is anything but Invalid
func (s Stage) IsValid() bool { return s.kind != KindInvalid }

// Value returns the carried value; ok is false for Invalid stages
func (s Stage) Value() (v value.Value, ok bool) {
	if s.kind == KindInvalid {
		return value.Null(), false
	}
	return s.value, true
}

// Reason returns the message of an Invalid stage
func (s Stage) Reason() string { return s.reason }

// WithValue keeps the variant and replaces the carried value. Invalid stages
// are returned unchanged.
func (s Stage) WithValue(v value.Value) Stage {
	if s.kind == KindInvalid {
		return s
	}
	return Stage{kind: s.kind, value: v}
}

func (s Stage) String() string {
	if s.kind == KindInvalid {
		return fmt.Sprintf("Invalid(%q)", s.reason)
	}
	return fmt.Sprintf("%s(%s)", s.kind, s.value)
}
