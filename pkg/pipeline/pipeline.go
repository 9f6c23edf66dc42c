// ABOUTME: Ordered, immutable modifier chains evaluated against an entity
// ABOUTME: Folds a Stage left-to-right through every modifier without short-circuiting

package pipeline

import (
	"context"
	"strings"

	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

// Object is the read-only view of the owning entity handed to modifiers.
// Modifiers may read other fields but never write to the entity.
type Object interface {
	ModelName() string
	GetValue(key string) (value.Value, bool, error)
	IsNew() bool
}

// Modifier is one named unit of transformation or validation.
// Call may block on I/O; it must honour ctx for anything it waits on.
type Modifier interface {
	Name() string
	Call(ctx context.Context, s stage.Stage, obj Object) stage.Stage
}

// Pipeline is an immutable ordered list of modifiers. The zero value is empty.
type Pipeline struct {
	modifiers []Modifier
}

// New builds a pipeline from modifiers in evaluation order
func New(modifiers ...Modifier) Pipeline {
	cp := make([]Modifier, len(modifiers))
	copy(cp, modifiers)
	return Pipeline{modifiers: cp}
}

// Then returns a new pipeline with modifiers appended
func (p Pipeline) Then(modifiers ...Modifier) Pipeline {
	cp := make([]Modifier, 0, len(p.modifiers)+len(modifiers))
	cp = append(cp, p.modifiers...)
	cp = append(cp, modifiers...)
	return Pipeline{modifiers: cp}
}

// HasAnyModifier reports whether evaluation would do any work
func (p Pipeline) HasAnyModifier() bool { return len(p.modifiers) > 0 }

// Len returns the number of modifiers
func (p Pipeline) Len() int { return len(p.modifiers) }

// Modifiers returns a copy of the modifier list
func (p Pipeline) Modifiers() []Modifier {
	cp := make([]Modifier, len(p.modifiers))
	copy(cp, p.modifiers)
	return cp
}

// Names lists modifier names in order, for diagnostics
func (p Pipeline) Names() []string {
	names := make([]string, len(p.modifiers))
	for i, m := range p.modifiers {
		names[i] = m.Name()
	}
	return names
}

func (p Pipeline) String() string {
	return "pipeline(" + strings.Join(p.Names(), " -> ") + ")"
}

// Process threads s through every modifier in declaration order. Each
// modifier receives exactly the stage returned by its predecessor, and an
// Invalid stage does not stop the chain; callers inspect the final stage.
func (p Pipeline) Process(ctx context.Context, s stage.Stage, obj Object) stage.Stage {
	for _, m := range p.modifiers {
		s = m.Call(ctx, s, obj)
	}
	return s
}

// Func adapts a plain function into a named Modifier
func Func(name string, fn func(ctx context.Context, s stage.Stage, obj Object) stage.Stage) Modifier {
	return funcModifier{name: name, fn: fn}
}

type funcModifier struct {
	name string
	fn   func(ctx context.Context, s stage.Stage, obj Object) stage.Stage
}

func (f funcModifier) Name() string { return f.name }

func (f funcModifier) Call(ctx context.Context, s stage.Stage, obj Object) stage.Stage {
	return f.fn(ctx, s, obj)
}
