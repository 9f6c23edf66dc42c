// ABOUTME: Fluent builders that compile declarative definitions into Models
// ABOUTME: Validates primary and index definitions; failures abort at build time

package model

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/jinzhu/inflection"
	"go.uber.org/multierr"

	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/value"
)

// Builder collects a model definition
type Builder struct {
	name          string
	table         string
	urlSegment    string
	localizedName string
	description   string
	identity      bool
	fields        []*FieldBuilder
	primary       *indexDef
	primaryDecls  int
	indices       []indexDef
	relations     []*RelationBuilder
	beforeDelete  pipeline.Pipeline
}

type indexDef struct {
	kind     IndexKind
	keys     []string
	settings IndexSettings
}

// NewBuilder starts a model definition named name
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Table overrides the default table name (lower-cased plural of the name)
func (b *Builder) Table(name string) *Builder {
	b.table = name
	return b
}

// URLSegment overrides the default URL segment (kebab-case plural)
func (b *Builder) URLSegment(seg string) *Builder {
	b.urlSegment = seg
	return b
}

func (b *Builder) LocalizedName(name string) *Builder {
	b.localizedName = name
	return b
}

func (b *Builder) Description(desc string) *Builder {
	b.description = desc
	return b
}

// Identity marks the model as able to authenticate
func (b *Builder) Identity() *Builder {
	b.identity = true
	return b
}

// Primary declares a (possibly composite) primary index
func (b *Builder) Primary(keys ...string) *Builder {
	return b.PrimarySettings(IndexSettings{}, keys...)
}

func (b *Builder) PrimarySettings(settings IndexSettings, keys ...string) *Builder {
	b.primaryDecls++
	b.primary = &indexDef{kind: PrimaryIndex, keys: keys, settings: settings}
	return b
}

// Index declares a plain secondary index
func (b *Builder) Index(keys ...string) *Builder {
	return b.IndexSettings(IndexSettings{}, keys...)
}

func (b *Builder) IndexSettings(settings IndexSettings, keys ...string) *Builder {
	b.indices = append(b.indices, indexDef{kind: PlainIndex, keys: keys, settings: settings})
	return b
}

// Unique declares a unique secondary index
func (b *Builder) Unique(keys ...string) *Builder {
	return b.UniqueSettings(IndexSettings{}, keys...)
}

func (b *Builder) UniqueSettings(settings IndexSettings, keys ...string) *Builder {
	b.indices = append(b.indices, indexDef{kind: UniqueIndex, keys: keys, settings: settings})
	return b
}

// BeforeDelete sets the pipeline run against the identifier before deletes
func (b *Builder) BeforeDelete(p pipeline.Pipeline) *Builder {
	b.beforeDelete = p
	return b
}

// Field adds a field and returns its builder
func (b *Builder) Field(name string, t value.Type) *FieldBuilder {
	fb := &FieldBuilder{field: Field{Name: name, Type: t}}
	b.fields = append(b.fields, fb)
	return fb
}

// Relation adds a relation and returns its builder
func (b *Builder) Relation(name string) *RelationBuilder {
	rb := &RelationBuilder{rel: Relation{Name: name}}
	b.relations = append(b.relations, rb)
	return rb
}

// MustBuild is Build for package-level schema definitions; it panics on error
func (b *Builder) MustBuild() *Model {
	m, err := b.Build()
	if err != nil {
		panic(err)
	}
	return m
}

// Build compiles the definition. Every problem found is reported, each
// wrapped with the model name.
func (b *Builder) Build() (*Model, error) {
	var errs error
	fail := func(err error, format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("model %q: %w: %s", b.name, err, fmt.Sprintf(format, args...)))
	}
	if strings.TrimSpace(b.name) == "" {
		errs = multierr.Append(errs, fmt.Errorf("model: %w", ErrEmptyName))
	}

	m := &Model{
		name:          b.name,
		table:         b.table,
		urlSegment:    b.urlSegment,
		localizedName: b.localizedName,
		description:   b.description,
		identity:      b.identity,
		fieldMap:      make(map[string]*Field, len(b.fields)),
		relMap:        make(map[string]*Relation, len(b.relations)),
		beforeDelete:  b.beforeDelete,
	}
	if m.table == "" {
		m.table = inflection.Plural(strings.ToLower(b.name))
	}
	if m.urlSegment == "" {
		m.urlSegment = inflection.Plural(strcase.ToKebab(b.name))
	}
	if m.localizedName == "" {
		m.localizedName = b.name
	}

	var primaryFields []*Field
	var synthesized []Index
	for _, fb := range b.fields {
		f := fb.field
		if f.Name == "" {
			fail(ErrEmptyName, "field")
			continue
		}
		if f.Type.IsZero() {
			fail(ErrInvalidFieldType, "%s", f.Name)
			continue
		}
		if _, dup := m.fieldMap[f.Name]; dup {
			fail(ErrDuplicateField, "%s", f.Name)
			continue
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		field := &f
		m.fields = append(m.fields, field)
		m.fieldMap[f.Name] = field
		if f.Primary {
			primaryFields = append(primaryFields, field)
		}
		if f.Index != nil {
			name := f.Index.Settings.Name
			if name == "" {
				name = f.Column
			}
			synthesized = append(synthesized, Index{
				Kind: f.Index.Kind,
				Name: name,
				Items: []IndexItem{{
					Field:  f.Name,
					Column: f.Column,
					Sort:   f.Index.Settings.Sort,
					Length: f.Index.Settings.Length,
				}},
			})
		}
	}

	resolve := func(def indexDef) (Index, bool) {
		if len(def.keys) == 0 {
			fail(ErrEmptyIndex, "%s index", def.kind)
			return Index{}, false
		}
		idx := Index{Kind: def.kind, Name: def.settings.Name}
		if idx.Name == "" {
			idx.Name = defaultIndexName(def.keys)
		}
		ok := true
		for _, key := range def.keys {
			f, found := m.fieldMap[key]
			if !found {
				fail(ErrUnknownField, "%s index %q references %s", def.kind, idx.Name, key)
				ok = false
				continue
			}
			idx.Items = append(idx.Items, IndexItem{
				Field:  f.Name,
				Column: f.Column,
				Sort:   def.settings.Sort,
				Length: def.settings.Length,
			})
		}
		return idx, ok
	}

	switch {
	case b.primaryDecls > 1:
		fail(ErrMultiplePrimary, "primary declared twice")
	case b.primary != nil && len(primaryFields) > 0:
		fail(ErrMultiplePrimary, "field %s and model primary", primaryFields[0].Name)
	case len(primaryFields) > 1:
		fail(ErrMultiplePrimary, "fields %s and %s", primaryFields[0].Name, primaryFields[1].Name)
	case len(primaryFields) == 1:
		f := primaryFields[0]
		m.primary = Index{
			Kind:  PrimaryIndex,
			Name:  f.Column,
			Items: []IndexItem{{Field: f.Name, Column: f.Column, Sort: Asc}},
		}
	case b.primary != nil:
		if idx, ok := resolve(*b.primary); ok {
			m.primary = idx
		}
	default:
		fail(ErrNoPrimary, "%s", b.name)
	}

	seen := make(map[string]bool)
	for _, def := range b.indices {
		if idx, ok := resolve(def); ok {
			m.indices = append(m.indices, idx)
		}
	}
	m.indices = append(m.indices, synthesized...)
	for _, idx := range m.indices {
		if seen[idx.Name] {
			fail(ErrDuplicateIndex, "%s", idx.Name)
		}
		seen[idx.Name] = true
	}

	for _, rb := range b.relations {
		r := rb.rel
		if _, clash := m.fieldMap[r.Name]; clash || m.relMap[r.Name] != nil {
			fail(ErrDuplicateField, "relation %s", r.Name)
			continue
		}
		if r.Model == "" || len(r.Fields) != len(r.References) {
			fail(ErrInvalidRelation, "%s", r.Name)
			continue
		}
		if r.Through == "" {
			for _, key := range r.Fields {
				if _, found := m.fieldMap[key]; !found {
					fail(ErrUnknownField, "relation %s references %s", r.Name, key)
				}
			}
		}
		rel := r
		m.relations = append(m.relations, &rel)
		m.relMap[r.Name] = &rel
	}

	if errs != nil {
		return nil, errs
	}

	unique := make(map[string]bool)
	for _, idx := range m.UniqueIndices() {
		for _, key := range idx.Keys() {
			unique[key] = true
		}
	}
	m.inputKeys = m.project(func(f *Field) bool { return f.WriteRule != NoWrite })
	m.saveKeys = m.project(func(f *Field) bool { return f.IsPersisted() })
	m.outputKeys = m.project(func(f *Field) bool { return f.ReadRule != NoRead })
	m.getValueKeys = m.project(func(*Field) bool { return true })
	m.queryKeys = m.project(func(f *Field) bool { return f.QueryAbility == Queryable })
	m.uniqueQueryKeys = m.project(func(f *Field) bool {
		return f.QueryAbility == Queryable && unique[f.Name]
	})
	m.authIdentityKeys = m.project(func(f *Field) bool { return f.AuthIdentity })
	m.authByKeys = m.project(func(f *Field) bool { return f.AuthBy })
	return m, nil
}

func (m *Model) project(keep func(*Field) bool) KeySet {
	var keys []string
	for _, f := range m.fields {
		if keep(f) {
			keys = append(keys, f.Name)
		}
	}
	return newKeySet(keys)
}

// FieldBuilder configures one field
type FieldBuilder struct {
	field Field
}

func (fb *FieldBuilder) Column(name string) *FieldBuilder {
	fb.field.Column = name
	return fb
}

func (fb *FieldBuilder) Description(desc string) *FieldBuilder {
	fb.field.Description = desc
	return fb
}

func (fb *FieldBuilder) Optional() *FieldBuilder {
	fb.field.Optional = true
	return fb
}

// Primary makes this field the single-column primary index
func (fb *FieldBuilder) Primary() *FieldBuilder {
	fb.field.Primary = true
	return fb
}

// AutoIncrement lets the connector assign the value on insert
func (fb *FieldBuilder) AutoIncrement() *FieldBuilder {
	fb.field.AutoIncrement = true
	return fb
}

func (fb *FieldBuilder) Index() *FieldBuilder {
	return fb.IndexSettings(IndexSettings{})
}

func (fb *FieldBuilder) IndexSettings(s IndexSettings) *FieldBuilder {
	fb.field.Index = &FieldIndex{Kind: PlainIndex, Settings: s}
	return fb
}

func (fb *FieldBuilder) Unique() *FieldBuilder {
	return fb.UniqueSettings(IndexSettings{})
}

func (fb *FieldBuilder) UniqueSettings(s IndexSettings) *FieldBuilder {
	fb.field.Index = &FieldIndex{Kind: UniqueIndex, Settings: s}
	return fb
}

func (fb *FieldBuilder) WriteRule(r WriteRule) *FieldBuilder {
	fb.field.WriteRule = r
	return fb
}

func (fb *FieldBuilder) ReadRule(r ReadRule) *FieldBuilder {
	fb.field.ReadRule = r
	return fb
}

// ReadOnly is shorthand for WriteRule(NoWrite)
func (fb *FieldBuilder) ReadOnly() *FieldBuilder { return fb.WriteRule(NoWrite) }

// WriteOnly is shorthand for ReadRule(NoRead)
func (fb *FieldBuilder) WriteOnly() *FieldBuilder { return fb.ReadRule(NoRead) }

func (fb *FieldBuilder) Store(s Store) *FieldBuilder {
	fb.field.Store = s
	return fb
}

func (fb *FieldBuilder) Unqueryable() *FieldBuilder {
	fb.field.QueryAbility = Unqueryable
	return fb
}

func (fb *FieldBuilder) AuthIdentity() *FieldBuilder {
	fb.field.AuthIdentity = true
	return fb
}

func (fb *FieldBuilder) AuthBy() *FieldBuilder {
	fb.field.AuthBy = true
	return fb
}

func (fb *FieldBuilder) Default(v value.Value) *FieldBuilder {
	fb.field.Default = DefaultValue(v)
	return fb
}

func (fb *FieldBuilder) DefaultPipeline(p pipeline.Pipeline) *FieldBuilder {
	fb.field.Default = DefaultPipeline(p)
	return fb
}

// OnSet sets the pipeline run whenever the field is ingested from JSON
func (fb *FieldBuilder) OnSet(p pipeline.Pipeline) *FieldBuilder {
	fb.field.OnSet = p
	return fb
}

// OnSave sets the pipeline run over the field's value before every save
func (fb *FieldBuilder) OnSave(p pipeline.Pipeline) *FieldBuilder {
	fb.field.OnSave = p
	return fb
}

// RelationBuilder configures one relation
type RelationBuilder struct {
	rel Relation
}

// Model sets the target model name
func (rb *RelationBuilder) Model(name string) *RelationBuilder {
	rb.rel.Model = name
	return rb
}

// Through routes the relation via a join model
func (rb *RelationBuilder) Through(name string) *RelationBuilder {
	rb.rel.Through = name
	return rb
}

// Many marks a collection relation
func (rb *RelationBuilder) Many() *RelationBuilder {
	rb.rel.Many = true
	return rb
}

func (rb *RelationBuilder) Fields(keys ...string) *RelationBuilder {
	rb.rel.Fields = append([]string(nil), keys...)
	return rb
}

func (rb *RelationBuilder) References(keys ...string) *RelationBuilder {
	rb.rel.References = append([]string(nil), keys...)
	return rb
}
