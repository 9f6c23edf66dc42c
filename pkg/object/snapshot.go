package object

import (
	"fmt"

	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/value"
)

// Snapshot is a detached copy of an object's state, used to move an object
// across a process boundary
type Snapshot struct {
	Model    string
	Values   map[string]value.Value
	Previous map[string]value.Value
	Modified []string
	New      bool
}

// Snapshot copies the current state
func (o *Object) Snapshot() Snapshot {
	s := Snapshot{
		Model:    o.model.Name(),
		Values:   o.Values(),
		Modified: o.ModifiedFields(),
		New:      o.isNew.Load(),
	}
	o.mu.RLock()
	s.Previous = make(map[string]value.Value, len(o.previous))
	for k, v := range o.previous {
		s.Previous[k] = v
	}
	o.mu.RUnlock()
	return s
}

// FromSnapshot rebuilds an initialized object of m from s
func FromSnapshot(m *model.Model, conn Connector, s Snapshot, opts ...Option) (*Object, error) {
	if s.Model != m.Name() {
		return nil, fmt.Errorf("snapshot of %q cannot restore a %q object", s.Model, m.Name())
	}
	keys := m.GetValueKeys()
	for k := range s.Values {
		if !keys.Contains(k) {
			return nil, errs.KeysUnallowed(k)
		}
	}
	if missing := keys.Missing(s.Modified); len(missing) > 0 {
		return nil, errs.KeysUnallowed(missing...)
	}

	o := New(m, conn, opts...)
	for k, v := range s.Values {
		if !v.IsNull() {
			o.values[k] = v
		}
	}
	for k, v := range s.Previous {
		o.previous[k] = v
	}
	for _, k := range s.Modified {
		o.modified[k] = struct{}{}
	}
	o.isNew.Store(s.New)
	o.isModified.Store(!s.New && len(s.Modified) > 0)
	o.isInitialized.Store(true)
	return o, nil
}

// Hydrate builds a persisted, clean object from stored values
func Hydrate(m *model.Model, conn Connector, values map[string]value.Value, opts ...Option) (*Object, error) {
	return FromSnapshot(m, conn, Snapshot{Model: m.Name(), Values: values}, opts...)
}
