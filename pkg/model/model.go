// ABOUTME: Compiled, immutable schema metadata for one entity type
// ABOUTME: Exposes fields, key-role projections, indices and relations

package model

import "github.com/nainya/entitycore/pkg/pipeline"

// Model is the compiled metadata of one entity type. Models are produced by
// Builder.Build and never change afterwards; identity is pointer identity.
type Model struct {
	name          string
	table         string
	urlSegment    string
	localizedName string
	description   string
	identity      bool

	fields    []*Field
	fieldMap  map[string]*Field
	primary   Index
	indices   []Index
	relations []*Relation
	relMap    map[string]*Relation

	inputKeys        KeySet
	saveKeys         KeySet
	outputKeys       KeySet
	getValueKeys     KeySet
	queryKeys        KeySet
	uniqueQueryKeys  KeySet
	authIdentityKeys KeySet
	authByKeys       KeySet

	beforeDelete pipeline.Pipeline
}

func (m *Model) Name() string          { return m.name }
func (m *Model) Table() string         { return m.table }
func (m *Model) URLSegment() string    { return m.urlSegment }
func (m *Model) LocalizedName() string { return m.localizedName }
func (m *Model) Description() string   { return m.description }

// IsIdentity reports whether entities of this model can authenticate
func (m *Model) IsIdentity() bool { return m.identity }

// Fields returns the fields in declaration order
func (m *Model) Fields() []*Field {
	cp := make([]*Field, len(m.fields))
	copy(cp, m.fields)
	return cp
}

// Field looks a field up by name
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fieldMap[name]
	return f, ok
}

// Primary returns the primary index
func (m *Model) Primary() Index { return m.primary }

// PrimaryField returns the field of a single-column primary index
func (m *Model) PrimaryField() (*Field, bool) {
	if len(m.primary.Items) != 1 {
		return nil, false
	}
	return m.Field(m.primary.Items[0].Field)
}

// Indices returns the secondary indices
func (m *Model) Indices() []Index {
	cp := make([]Index, len(m.indices))
	copy(cp, m.indices)
	return cp
}

// UniqueIndices returns the primary index followed by every unique index
func (m *Model) UniqueIndices() []Index {
	out := []Index{m.primary}
	for _, idx := range m.indices {
		if idx.Kind == UniqueIndex {
			out = append(out, idx)
		}
	}
	return out
}

// UniqueIndexFor returns the primary or unique index covering exactly
// keys, in any order
func (m *Model) UniqueIndexFor(keys ...string) (Index, bool) {
	for _, idx := range m.UniqueIndices() {
		idxKeys := idx.Keys()
		if len(idxKeys) != len(keys) {
			continue
		}
		set := newKeySet(idxKeys)
		match := true
		for _, k := range keys {
			if !set.Contains(k) {
				match = false
				break
			}
		}
		if match {
			return idx, true
		}
	}
	return Index{}, false
}

func (m *Model) Relations() []*Relation {
	cp := make([]*Relation, len(m.relations))
	copy(cp, m.relations)
	return cp
}

func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relMap[name]
	return r, ok
}

// InputKeys are the fields callers may write through SetJSON
func (m *Model) InputKeys() KeySet { return m.inputKeys }

// SaveKeys are the fields connectors persist
func (m *Model) SaveKeys() KeySet { return m.saveKeys }

// OutputKeys are the fields emitted by ToJSON
func (m *Model) OutputKeys() KeySet { return m.outputKeys }

// GetValueKeys are all declared fields
func (m *Model) GetValueKeys() KeySet { return m.getValueKeys }

func (m *Model) QueryKeys() KeySet        { return m.queryKeys }
func (m *Model) UniqueQueryKeys() KeySet  { return m.uniqueQueryKeys }
func (m *Model) AuthIdentityKeys() KeySet { return m.authIdentityKeys }
func (m *Model) AuthByKeys() KeySet       { return m.authByKeys }

// BeforeDelete is evaluated against the identifier before a delete
func (m *Model) BeforeDelete() pipeline.Pipeline { return m.beforeDelete }
