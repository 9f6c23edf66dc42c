package modifiers

import (
	"context"

	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

// GetModifier replaces the value with another field of the owning entity
type GetModifier struct {
	field string
}

func Get(field string) *GetModifier { return &GetModifier{field: field} }

func (m *GetModifier) Name() string { return "get" }

func (m *GetModifier) Call(_ context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	if !s.IsValid() {
		return s
	}
	v, _, err := obj.GetValue(m.field)
	if err != nil {
		return stage.Invalid(err.Error())
	}
	return s.WithValue(v)
}

// TransformFunc computes a new value; a returned error becomes Invalid
type TransformFunc func(ctx context.Context, v value.Value, obj pipeline.Object) (value.Value, error)

// ValidateFunc checks a value; a returned error becomes Invalid
type ValidateFunc func(ctx context.Context, v value.Value, obj pipeline.Object) error

type transformModifier struct {
	name string
	fn   TransformFunc
}

// Transform wraps a user function as a value-mapping modifier
func Transform(name string, fn TransformFunc) pipeline.Modifier {
	return transformModifier{name: name, fn: fn}
}

func (m transformModifier) Name() string { return m.name }

func (m transformModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok {
		return s
	}
	out, err := m.fn(ctx, v, obj)
	if err != nil {
		return stage.Invalid(err.Error())
	}
	return s.WithValue(out)
}

type validateModifier struct {
	name string
	fn   ValidateFunc
}

// Validate wraps a user function as a predicate modifier. The function may
// block on I/O, e.g. to consult an external service.
func Validate(name string, fn ValidateFunc) pipeline.Modifier {
	return validateModifier{name: name, fn: fn}
}

func (m validateModifier) Name() string { return m.name }

func (m validateModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok {
		return s
	}
	if err := m.fn(ctx, v, obj); err != nil {
		return stage.Invalid(err.Error())
	}
	return s
}
