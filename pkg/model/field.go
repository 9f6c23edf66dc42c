package model

import (
	"github.com/nainya/entitycore/pkg/pipeline"
	"github.com/nainya/entitycore/pkg/value"
)

// WriteRule controls whether callers may supply a field through SetJSON
type WriteRule uint8

const (
	Write WriteRule = iota
	NoWrite
	WriteOnCreate
)

// ReadRule controls whether a field appears in serialized output
type ReadRule uint8

const (
	Read ReadRule = iota
	NoRead
)

// Store controls whether a field is persisted by connectors
type Store uint8

const (
	Embedded Store = iota
	Calculated
	Temp
)

// QueryAbility controls whether a field may appear in lookups
type QueryAbility uint8

const (
	Queryable QueryAbility = iota
	Unqueryable
)

// Default is a field's default value specification: either a literal or a
// pipeline evaluated against a null stage. The zero value means no default.
type Default struct {
	literal  value.Value
	pipeline pipeline.Pipeline
	set      bool
}

// DefaultValue declares a literal default
func DefaultValue(v value.Value) Default {
	return Default{literal: v, set: true}
}

// DefaultPipeline declares a computed default
func DefaultPipeline(p pipeline.Pipeline) Default {
	return Default{pipeline: p, set: true}
}

// IsSet reports whether a default was declared
func (d Default) IsSet() bool { return d.set }

// Pipeline returns the computed default, if any
func (d Default) Pipeline() (pipeline.Pipeline, bool) {
	return d.pipeline, d.set && d.pipeline.HasAnyModifier()
}

// Literal returns the literal default, if any
func (d Default) Literal() (value.Value, bool) {
	return d.literal, d.set && !d.pipeline.HasAnyModifier()
}

// Field is the compiled metadata of one entity field
type Field struct {
	Name          string
	Column        string
	Description   string
	Type          value.Type
	Optional      bool
	Primary       bool
	AutoIncrement bool
	Index         *FieldIndex
	WriteRule     WriteRule
	ReadRule      ReadRule
	Store         Store
	QueryAbility  QueryAbility
	AuthIdentity  bool
	AuthBy        bool
	Default       Default
	OnSet         pipeline.Pipeline
	OnSave        pipeline.Pipeline
}

// Decode turns raw JSON input into a typed value for this field
func (f *Field) Decode(data any) (value.Value, error) {
	return f.Type.Decode(data)
}

// IsPersisted reports whether connectors store this field
func (f *Field) IsPersisted() bool {
	return f.Store != Calculated && f.Store != Temp
}
