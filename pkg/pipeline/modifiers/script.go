package modifiers

import (
	"context"
	"fmt"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

var scriptOptions = &syntax.FileOptions{}

// ScriptModifier evaluates a Starlark expression. The expression sees the
// current value as `value` and can read sibling fields with `get(name)`;
// its result becomes the new value. Calling `fail(msg)` yields Invalid(msg).
type ScriptModifier struct {
	src string
}

// Script parses src up front so syntax errors surface at schema build time
func Script(src string) (*ScriptModifier, error) {
	if _, err := scriptOptions.ParseExpr("script", src, 0); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	return &ScriptModifier{src: src}, nil
}

func (m *ScriptModifier) Name() string { return "script" }

func (m *ScriptModifier) Call(ctx context.Context, s stage.Stage, obj pipeline.Object) stage.Stage {
	v, ok := s.Value()
	if !ok {
		return s
	}
	if err := ctx.Err(); err != nil {
		return stage.Invalid(err.Error())
	}
	current, err := toStarlark(v)
	if err != nil {
		return stage.Invalid(err.Error())
	}

	thread := &starlark.Thread{Name: "script"}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	env := starlark.StringDict{
		"value": current,
		"get":   getBuiltin(obj),
	}
	res, err := starlark.EvalOptions(scriptOptions, thread, "script", m.src, env)
	if err != nil {
		return stage.Invalid(scriptReason(err))
	}
	out, err := fromStarlark(res)
	if err != nil {
		return stage.Invalid(err.Error())
	}
	return s.WithValue(out)
}

func getBuiltin(obj pipeline.Object) *starlark.Builtin {
	return starlark.NewBuiltin("get", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		v, _, err := obj.GetValue(name)
		if err != nil {
			return nil, err
		}
		return toStarlark(v)
	})
}

func scriptReason(err error) string {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return strings.TrimPrefix(evalErr.Msg, "fail: ")
	}
	return err.Error()
}

func toStarlark(v value.Value) (starlark.Value, error) {
	switch v.Kind() {
	case value.KindNull:
		return starlark.None, nil
	case value.KindBool:
		b, _ := v.AsBool()
		return starlark.Bool(b), nil
	case value.KindInt:
		i, _ := v.AsInt()
		return starlark.MakeInt64(i), nil
	case value.KindFloat:
		f, _ := v.AsFloat()
		return starlark.Float(f), nil
	case value.KindString:
		str, _ := v.AsString()
		return starlark.String(str), nil
	case value.KindTime:
		return starlark.String(v.Interface().(string)), nil
	case value.KindArray:
		items, _ := v.AsArray()
		list := make([]starlark.Value, len(items))
		for i, item := range items {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case value.KindObject:
		fields, _ := v.AsObject()
		dict := starlark.NewDict(len(fields))
		for k, item := range fields {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	}
	return nil, fmt.Errorf("unsupported value kind %s", v.Kind())
}

func fromStarlark(v starlark.Value) (value.Value, error) {
	switch sv := v.(type) {
	case starlark.NoneType:
		return value.Null(), nil
	case starlark.Bool:
		return value.Bool(bool(sv)), nil
	case starlark.Int:
		i, ok := sv.Int64()
		if !ok {
			return value.Null(), fmt.Errorf("integer %s out of range", sv.String())
		}
		return value.Int(i), nil
	case starlark.Float:
		return value.Float(float64(sv)), nil
	case starlark.String:
		return value.String(string(sv)), nil
	case *starlark.List:
		items := make([]value.Value, sv.Len())
		for i := 0; i < sv.Len(); i++ {
			item, err := fromStarlark(sv.Index(i))
			if err != nil {
				return value.Null(), err
			}
			items[i] = item
		}
		return value.Array(items...), nil
	case starlark.Tuple:
		items := make([]value.Value, sv.Len())
		for i := 0; i < sv.Len(); i++ {
			item, err := fromStarlark(sv.Index(i))
			if err != nil {
				return value.Null(), err
			}
			items[i] = item
		}
		return value.Array(items...), nil
	case *starlark.Dict:
		fields := make(map[string]value.Value, sv.Len())
		for _, kv := range sv.Items() {
			key, ok := kv[0].(starlark.String)
			if !ok {
				return value.Null(), fmt.Errorf("dict key must be string, got %s", kv[0].Type())
			}
			item, err := fromStarlark(kv[1])
			if err != nil {
				return value.Null(), err
			}
			fields[string(key)] = item
		}
		return value.Object(fields), nil
	}
	return value.Null(), fmt.Errorf("unsupported script result %s", v.Type())
}
