package object

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"sort"

	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

// ParseJSON decodes a JSON object payload, keeping numbers exact
func ParseJSON(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errs.InvalidInput("", err.Error())
	}
	payload, ok := raw.(map[string]any)
	if !ok {
		return nil, errs.InvalidInput("", "expected a JSON object")
	}
	return payload, nil
}

// SetJSON is the create/replace contract for untrusted input: every key must
// be an input key, and each value runs through its field's on-set pipeline.
// On the first call every input field is considered and missing fields get
// their defaults. Nothing is committed unless the whole payload is accepted.
func (o *Object) SetJSON(ctx context.Context, payload map[string]any) error {
	return o.ingest(ctx, payload, o.model.InputKeys(), true)
}

// UpdateJSON is the trusted partial-update contract for internal callers:
// keys are checked against the save keys, so fields that are not writable
// by callers may still be updated. On-set pipelines run as for SetJSON.
func (o *Object) UpdateJSON(ctx context.Context, payload map[string]any) error {
	return o.ingest(ctx, payload, o.model.SaveKeys(), true)
}

// LoadJSON assigns decoded values without running pipelines, for records
// read back from storage
func (o *Object) LoadJSON(ctx context.Context, payload map[string]any) error {
	return o.ingest(ctx, payload, o.model.SaveKeys(), false)
}

func (o *Object) ingest(ctx context.Context, payload map[string]any, allowed model.KeySet, process bool) error {
	o.op.Lock()
	defer o.op.Unlock()

	if unallowed := unallowedKeys(o.model, allowed, payload); len(unallowed) > 0 {
		return errs.KeysUnallowed(unallowed...)
	}

	initialized := o.isInitialized.Load()
	view := newStagedView(o)
	for _, key := range allowed.Keys() {
		raw, present := payload[key]
		if initialized && !present {
			continue
		}
		field, _ := o.model.Field(key)
		if !present {
			if err := o.applyDefault(ctx, view, field); err != nil {
				return err
			}
			continue
		}
		v, err := field.Decode(raw)
		if err != nil {
			o.reject(key, err.Error())
			return errs.InvalidInput(key, err.Error())
		}
		if process && field.OnSet.HasAnyModifier() {
			result := field.OnSet.Process(ctx, stage.Value(v), view)
			out, ok := result.Value()
			if !ok {
				o.reject(key, result.Reason())
				return errs.InvalidInput(key, result.Reason())
			}
			v = out
		}
		if v.IsNull() && o.isNew.Load() {
			continue
		}
		view.stage(key, v)
	}

	o.mu.Lock()
	view.commitLocked()
	o.mu.Unlock()
	o.isInitialized.Store(true)
	return nil
}

func (o *Object) applyDefault(ctx context.Context, view *stagedView, field *model.Field) error {
	if lit, ok := field.Default.Literal(); ok {
		view.stage(field.Name, lit)
		return nil
	}
	p, ok := field.Default.Pipeline()
	if !ok {
		return nil
	}
	result := p.Process(ctx, stage.Value(value.Null()), view)
	v, ok := result.Value()
	if !ok {
		o.reject(field.Name, result.Reason())
		return errs.InvalidInput(field.Name, result.Reason())
	}
	view.stage(field.Name, v)
	return nil
}

func (o *Object) reject(field, reason string) {
	o.log.LogPipelineRejection(o.model.Name(), field, reason)
	o.metrics.RecordPipelineRejection(o.model.Name(), field)
}

// unallowedKeys returns payload keys outside allowed, declared fields first
// in model order, then unknown names sorted
func unallowedKeys(m *model.Model, allowed model.KeySet, payload map[string]any) []string {
	var out []string
	for _, key := range m.GetValueKeys().Keys() {
		if _, ok := payload[key]; ok && !allowed.Contains(key) {
			out = append(out, key)
		}
	}
	var unknown []string
	for key := range payload {
		if !m.GetValueKeys().Contains(key) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return append(out, unknown...)
}

// stagedView is the pipeline context during a mutating pass. Modifiers see
// values staged earlier in the same pass; the object itself is untouched
// until commitLocked.
type stagedView struct {
	obj    *Object
	order  []string
	staged map[string]value.Value
}

func newStagedView(o *Object) *stagedView {
	return &stagedView{obj: o, staged: make(map[string]value.Value)}
}

func (v *stagedView) ModelName() string { return v.obj.ModelName() }

func (v *stagedView) IsNew() bool { return v.obj.IsNew() }

func (v *stagedView) GetValue(key string) (value.Value, bool, error) {
	if s, ok := v.staged[key]; ok {
		return s, !s.IsNull(), nil
	}
	return v.obj.GetValue(key)
}

func (v *stagedView) stage(key string, val value.Value) {
	if _, ok := v.staged[key]; !ok {
		v.order = append(v.order, key)
	}
	v.staged[key] = val
}

// commitLocked writes the staged values and returns an undo that restores
// the values, dirty set and modified flag as they were; o.mu must be held
// when either runs.
func (v *stagedView) commitLocked() (undo func()) {
	o := v.obj
	modified := maps.Clone(o.modified)
	previous := maps.Clone(o.previous)
	wasModified := o.isModified.Load()
	prior := make(map[string]value.Value, len(v.order))
	for _, key := range v.order {
		if old, ok := o.values[key]; ok {
			prior[key] = old
		}
	}

	for _, key := range v.order {
		o.writeLocked(key, v.staged[key])
	}

	return func() {
		for _, key := range v.order {
			if old, ok := prior[key]; ok {
				o.values[key] = old
			} else {
				delete(o.values, key)
			}
		}
		o.modified = modified
		o.previous = previous
		o.isModified.Store(wasModified)
	}
}
