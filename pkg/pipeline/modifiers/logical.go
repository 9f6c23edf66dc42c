// Package modifiers provides the built-in pipeline modifiers.
//
// Every modifier passes an Invalid input stage through unchanged, so a
// failure raised early in a pipeline always reaches the caller.
package modifiers

import (
	"context"

	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/stage"
)

// IfModifier evaluates a nested pipeline against the current stage and
// converts its outcome into ConditionTrue or ConditionFalse, carrying the
// original value forward so later modifiers can dispatch on the branch.
type IfModifier struct {
	pipeline pipeline.Pipeline
}

func If(p pipeline.Pipeline) *IfModifier { return &IfModifier{pipeline: p} }

func (m *IfModifier) Name() string { return "if" }

func (m *IfModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok {
		return s
	}
	if m.pipeline.Process(ctx, s, obj).IsValid() {
		return stage.ConditionTrue(v)
	}
	return stage.ConditionFalse(v)
}

// ThenModifier runs its pipeline only when the incoming stage is ConditionTrue
type ThenModifier struct {
	pipeline pipeline.Pipeline
}

func Then(p pipeline.Pipeline) *ThenModifier { return &ThenModifier{pipeline: p} }

func (m *ThenModifier) Name() string { return "then" }

func (m *ThenModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	if s.Kind() != stage.KindConditionTrue {
		return s
	}
	v, _ := s.Value()
	return m.pipeline.Process(ctx, stage.Value(v), obj)
}

// ElseModifier runs its pipeline only when the incoming stage is ConditionFalse
type ElseModifier struct {
	pipeline pipeline.Pipeline
}

func Else(p pipeline.Pipeline) *ElseModifier { return &ElseModifier{pipeline: p} }

func (m *ElseModifier) Name() string { return "else" }

func (m *ElseModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	if s.Kind() != stage.KindConditionFalse {
		return s
	}
	v, _ := s.Value()
	return m.pipeline.Process(ctx, stage.Value(v), obj)
}

// DoModifier evaluates a nested pipeline and returns its final stage
type DoModifier struct {
	pipeline pipeline.Pipeline
}

func Do(p pipeline.Pipeline) *DoModifier { return &DoModifier{pipeline: p} }

func (m *DoModifier) Name() string { return "do" }

func (m *DoModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	if !s.IsValid() {
		return s
	}
	return m.pipeline.Process(ctx, s, obj)
}

// NotModifier fails when its nested pipeline succeeds and passes the input
// through when the nested pipeline fails
type NotModifier struct {
	pipeline pipeline.Pipeline
	reason   string
}

// Not inverts p. An empty reason falls back to a generic message.
func Not(p pipeline.Pipeline, reason string) *NotModifier {
	if reason == "" {
		reason = "value is not accepted"
	}
	return &NotModifier{pipeline: p, reason: reason}
}

func (m *NotModifier) Name() string { return "not" }

func (m *NotModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	if !s.IsValid() {
		return s
	}
	if m.pipeline.Process(ctx, s, obj).IsValid() {
		return stage.Invalid(m.reason)
	}
	return s
}

// AndModifier requires every nested pipeline to succeed; the first failure
// is returned as is
type AndModifier struct {
	pipelines []pipeline.Pipeline
}

func And(pipelines ...pipeline.Pipeline) *AndModifier {
	return &AndModifier{pipelines: append([]pipeline.Pipeline(nil), pipelines...)}
}

func (m *AndModifier) Name() string { return "and" }

func (m *AndModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	if !s.IsValid() {
		return s
	}
	for _, p := range m.pipelines {
		if res := p.Process(ctx, s, obj); !res.IsValid() {
			return res
		}
	}
	return s
}

// OrModifier requires at least one nested pipeline to succeed. When none
// does, the last failure is returned.
type OrModifier struct {
	pipelines []pipeline.Pipeline
}

func Or(pipelines ...pipeline.Pipeline) *OrModifier {
	return &OrModifier{pipelines: append([]pipeline.Pipeline(nil), pipelines...)}
}

func (m *OrModifier) Name() string { return "or" }

func (m *OrModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	if !s.IsValid() {
		return s
	}
	last := stage.Invalid("no alternative matched")
	for _, p := range m.pipelines {
		res := p.Process(ctx, s, obj)
		if res.IsValid() {
			return s
		}
		last = res
	}
	return last
}

// FailModifier always produces Invalid with a fixed reason
type FailModifier struct {
	reason string
}

func Fail(reason string) *FailModifier { return &FailModifier{reason: reason} }

func (m *FailModifier) Name() string { return "invalid" }

func (m *FailModifier) Call(_ context.Context, s stage.Stage, _ pipeline.Object) stage.Stage {
	if !s.IsValid() {
		return s
	}
	return stage.Invalid(m.reason)
}
