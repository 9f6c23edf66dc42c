// ABOUTME: Live, shared in-memory entity bound to one model
// ABOUTME: Owns field values, lifecycle flags, selection and dirty tracking

package object

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/internal/metrics"
	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/value"
)

// Object is a mutable entity shared by pointer. Reads are safe from any
// goroutine. SetJSON, UpdateJSON, Save and Delete are serialised per object;
// flag reads are atomic but a sequence of flag reads is not a transaction.
type Object struct {
	model   *model.Model
	conn    Connector
	log     *logger.Logger
	metrics *metrics.Metrics

	// op serialises the mutating passes; mu guards the maps below
	op sync.Mutex
	mu sync.RWMutex

	values        map[string]value.Value
	previous      map[string]value.Value
	selected      map[string]struct{}
	modified      map[string]struct{}
	manipulations map[string][]RelationManipulation

	isNew         atomic.Bool
	isModified    atomic.Bool
	isDeleted     atomic.Bool
	isInitialized atomic.Bool
	isPartial     atomic.Bool
}

// Option configures an Object
type Option func(*Object)

// WithLogger routes pipeline rejections to log
func WithLogger(log *logger.Logger) Option {
	return func(o *Object) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics records rejections, saves and deletes
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Object) { o.metrics = m }
}

// New creates an empty, new, uninitialized object of m persisted through conn
func New(m *model.Model, conn Connector, opts ...Option) *Object {
	o := &Object{
		model:         m,
		conn:          conn,
		log:           logger.Nop(),
		values:        make(map[string]value.Value),
		previous:      make(map[string]value.Value),
		modified:      make(map[string]struct{}),
		manipulations: make(map[string][]RelationManipulation),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.isNew.Store(true)
	return o
}

func (o *Object) Model() *model.Model { return o.model }

func (o *Object) ModelName() string { return o.model.Name() }

// Connector returns the connector the object persists through
func (o *Object) Connector() Connector { return o.conn }

func (o *Object) IsNew() bool         { return o.isNew.Load() }
func (o *Object) IsModified() bool    { return o.isModified.Load() }
func (o *Object) IsDeleted() bool     { return o.isDeleted.Load() }
func (o *Object) IsInitialized() bool { return o.isInitialized.Load() }
func (o *Object) IsPartial() bool     { return o.isPartial.Load() }

// IsInstanceOf reports whether the object belongs to the named model
func (o *Object) IsInstanceOf(modelName string) bool {
	return o.model.Name() == modelName
}

// SetValue is the raw write primitive: no pipeline runs. Null removes the
// key. Writes to an object that is no longer new are recorded as dirty.
func (o *Object) SetValue(key string, v value.Value) error {
	if !o.model.SaveKeys().Contains(key) {
		return errs.KeysUnallowed(key)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writeLocked(key, v)
	return nil
}

// writeLocked commits one value; o.mu must be held
func (o *Object) writeLocked(key string, v value.Value) {
	if !o.isNew.Load() {
		if _, seen := o.modified[key]; !seen {
			if old, ok := o.values[key]; ok {
				o.previous[key] = old
			} else {
				o.previous[key] = value.Null()
			}
		}
		o.modified[key] = struct{}{}
		o.isModified.Store(true)
	}
	if v.IsNull() {
		delete(o.values, key)
	} else {
		o.values[key] = v
	}
}

// GetValue returns the current value of key; ok is false when absent
func (o *Object) GetValue(key string) (value.Value, bool, error) {
	if !o.model.GetValueKeys().Contains(key) {
		return value.Null(), false, errs.KeysUnallowed(key)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[key]
	return v, ok, nil
}

// Values returns a copy of every present value
func (o *Object) Values() map[string]value.Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]value.Value, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

// SaveValues returns a copy of the present values connectors persist
func (o *Object) SaveValues() map[string]value.Value {
	saveKeys := o.model.SaveKeys()
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]value.Value, len(o.values))
	for k, v := range o.values {
		if saveKeys.Contains(k) {
			out[k] = v
		}
	}
	return out
}

// ModifiedFields returns the dirty set in field declaration order
func (o *Object) ModifiedFields() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []string
	for _, key := range o.model.GetValueKeys().Keys() {
		if _, ok := o.modified[key]; ok {
			out = append(out, key)
		}
	}
	return out
}

// PreviousValue returns what key held before its first change since the
// last save. ok is false when key is not dirty.
func (o *Object) PreviousValue(key string) (value.Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.previous[key]
	return v, ok
}

// Select exposes only the given output keys (plus any already selected)
// when the object is serialized
func (o *Object) Select(keys ...string) error {
	if missing := o.model.OutputKeys().Missing(keys); len(missing) > 0 {
		return errs.KeysUnallowed(missing...)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selected == nil {
		o.selected = make(map[string]struct{}, len(keys))
	}
	for _, k := range keys {
		o.selected[k] = struct{}{}
	}
	o.isPartial.Store(true)
	return nil
}

// Deselect hides the given keys. The first call seeds the selection with
// every output key so removals subtract from the full view.
func (o *Object) Deselect(keys ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.selected == nil {
		outputKeys := o.model.OutputKeys().Keys()
		o.selected = make(map[string]struct{}, len(outputKeys))
		for _, k := range outputKeys {
			o.selected[k] = struct{}{}
		}
	}
	for _, k := range keys {
		delete(o.selected, k)
	}
	o.isPartial.Store(true)
	return nil
}

// Selected returns the selection set in field declaration order
func (o *Object) Selected() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []string
	for _, key := range o.model.OutputKeys().Keys() {
		if _, ok := o.selected[key]; ok {
			out = append(out, key)
		}
	}
	return out
}

// ToJSON returns the non-null output fields. Null and absent fields are
// omitted, never emitted as null. Partial objects emit only selected keys.
func (o *Object) ToJSON() map[string]any {
	partial := o.isPartial.Load()
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]any)
	for _, key := range o.model.OutputKeys().Keys() {
		if partial {
			if _, ok := o.selected[key]; !ok {
				continue
			}
		}
		if v, ok := o.values[key]; ok && !v.IsNull() {
			out[key] = v.Interface()
		}
	}
	return out
}

// MarshalJSON implements json.Marshaler via ToJSON
func (o *Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.ToJSON())
}

// Identifier returns the primary key value: the field value for a single
// column primary (null when unset), an array of values for a composite one.
func (o *Object) Identifier() value.Value {
	keys := o.model.Primary().Keys()
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(keys) == 1 {
		return o.values[keys[0]]
	}
	items := make([]value.Value, len(keys))
	for i, k := range keys {
		items[i] = o.values[k]
	}
	return value.Array(items...)
}

// IdentifierValues returns the current primary key values by field name
func (o *Object) IdentifierValues() map[string]value.Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]value.Value)
	for _, k := range o.model.Primary().Keys() {
		out[k] = o.values[k]
	}
	return out
}

// PersistedIdentifierValues returns the primary key values as last saved,
// which differ from IdentifierValues when a key field is dirty
func (o *Object) PersistedIdentifierValues() map[string]value.Value {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]value.Value)
	for _, k := range o.model.Primary().Keys() {
		if prev, dirty := o.previous[k]; dirty {
			out[k] = prev
		} else {
			out[k] = o.values[k]
		}
	}
	return out
}

// Equal reports whether both objects are the same model and carry the same
// primary key. Objects without an identifier only equal themselves.
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if o == other {
		return true
	}
	if o.model != other.model {
		return false
	}
	a, b := o.Identifier(), other.Identifier()
	if !hasIdentity(a) || !hasIdentity(b) {
		return false
	}
	return a.Equal(b)
}

func hasIdentity(v value.Value) bool {
	if v.IsNull() {
		return false
	}
	if items, ok := v.AsArray(); ok {
		for _, item := range items {
			if item.IsNull() {
				return false
			}
		}
	}
	return true
}

func (o *Object) String() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var b strings.Builder
	b.WriteString(o.model.Name())
	b.WriteByte('{')
	first := true
	for _, key := range o.model.GetValueKeys().Keys() {
		v, ok := o.values[key]
		if !ok {
			continue
		}
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(v.String())
	}
	b.WriteByte('}')
	return b.String()
}
