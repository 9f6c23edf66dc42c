package modifiers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

type presentModifier struct{}

// Present rejects null values
func Present() pipeline.Modifier { return presentModifier{} }

func (presentModifier) Name() string { return "present" }

func (presentModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if ok && v.IsNull() {
		return stage.Invalid("value is required")
	}
	return s
}

// RangeModifier bounds numeric values to [min, max]
type RangeModifier struct {
	min, max float64
}

func Range(min, max float64) *RangeModifier { return &RangeModifier{min: min, max: max} }

func (m *RangeModifier) Name() string { return "range" }

func (m *RangeModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok || v.IsNull() {
		return s
	}
	f, ok := v.AsFloat()
	if !ok {
		return stage.Invalid("value is not number")
	}
	if f < m.min || f > m.max {
		return stage.Invalid(fmt.Sprintf("value must be between %g and %g", m.min, m.max))
	}
	return s
}

// OneOfModifier accepts only the listed values
type OneOfModifier struct {
	allowed []value.Value
}

func OneOf(allowed ...value.Value) *OneOfModifier {
	return &OneOfModifier{allowed: append([]value.Value(nil), allowed...)}
}

func (m *OneOfModifier) Name() string { return "one_of" }

func (m *OneOfModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok || v.IsNull() {
		return s
	}
	for _, a := range m.allowed {
		if a.Equal(v) {
			return s
		}
	}
	names := make([]string, len(m.allowed))
	for i, a := range m.allowed {
		names[i] = a.String()
	}
	return stage.Invalid("value must be one of " + strings.Join(names, ", "))
}

// ConstantModifier replaces the carried value
type ConstantModifier struct {
	v value.Value
}

func Constant(v value.Value) *ConstantModifier { return &ConstantModifier{v: v} }

func (m *ConstantModifier) Name() string { return "constant" }

func (m *ConstantModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	return s.WithValue(m.v)
}

// CoalesceModifier substitutes a fallback for null values
type CoalesceModifier struct {
	fallback value.Value
}

func Coalesce(fallback value.Value) *CoalesceModifier { return &CoalesceModifier{fallback: fallback} }

func (m *CoalesceModifier) Name() string { return "coalesce" }

func (m *CoalesceModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	if v, ok := s.Value(); ok && v.IsNull() {
		return s.WithValue(m.fallback)
	}
	return s
}

// NowModifier replaces the value with the current time
type NowModifier struct {
	clock func() time.Time
}

func Now() *NowModifier { return &NowModifier{clock: time.Now} }

// NowFunc uses clock instead of the wall clock
func NowFunc(clock func() time.Time) *NowModifier { return &NowModifier{clock: clock} }

func (m *NowModifier) Name() string { return "now" }

func (m *NowModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	return s.WithValue(value.Time(m.clock()))
}

type uuidModifier struct{}

// UUID replaces the value with a fresh random UUID string
func UUID() pipeline.Modifier { return uuidModifier{} }

func (uuidModifier) Name() string { return "uuid" }

func (uuidModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	return s.WithValue(value.String(uuid.NewString()))
}
