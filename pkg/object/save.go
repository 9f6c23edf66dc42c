package object

import (
	"context"

	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/stage"
	"github.com/nainya/entitycore/pkg/value"
)

// Save runs every on-save pipeline, then hands the object to the connector.
// A rejected value aborts before the connector is called. Lifecycle flags and
// the dirty set are reset only when the connector succeeds; on failure the
// on-save results are rolled back and the connector's error is returned
// unchanged.
func (o *Object) Save(ctx context.Context) error {
	o.op.Lock()
	defer o.op.Unlock()

	if o.isDeleted.Load() {
		return errs.ObjectDeleted(o.model.Name())
	}
	if o.conn == nil {
		return errs.Connector("save", ErrNoConnector)
	}

	view := newStagedView(o)
	for _, key := range o.model.SaveKeys().Keys() {
		field, _ := o.model.Field(key)
		if !field.OnSave.HasAnyModifier() {
			continue
		}
		current, _, err := view.GetValue(key)
		if err != nil {
			return err
		}
		result := field.OnSave.Process(ctx, stage.Value(current), view)
		v, ok := result.Value()
		if !ok {
			o.reject(key, result.Reason())
			return errs.InvalidInput(key, result.Reason())
		}
		view.stage(key, v)
	}
	o.mu.Lock()
	undo := view.commitLocked()
	o.mu.Unlock()

	if err := o.conn.SaveObject(ctx, o); err != nil {
		o.mu.Lock()
		undo()
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	o.modified = make(map[string]struct{})
	o.previous = make(map[string]value.Value)
	o.manipulations = make(map[string][]RelationManipulation)
	o.isNew.Store(false)
	o.isModified.Store(false)
	o.isInitialized.Store(true)
	o.mu.Unlock()
	o.metrics.RecordObjectSaved(o.model.Name())
	return nil
}

// Delete removes the object through the connector. A deleted object can no
// longer be saved.
func (o *Object) Delete(ctx context.Context) error {
	o.op.Lock()
	defer o.op.Unlock()

	if o.conn == nil {
		return errs.Connector("delete", ErrNoConnector)
	}
	if err := o.conn.DeleteObject(ctx, o); err != nil {
		return err
	}
	o.isDeleted.Store(true)
	o.metrics.RecordObjectDeleted(o.model.Name())
	return nil
}
