package model

import "strings"

// Sort is the ordering of an index item
type Sort uint8

const (
	Asc Sort = iota
	Desc
)

func (s Sort) String() string {
	if s == Desc {
		return "DESC"
	}
	return "ASC"
}

// IndexKind distinguishes primary, unique and plain indices
type IndexKind uint8

const (
	PrimaryIndex IndexKind = iota
	UniqueIndex
	PlainIndex
)

func (k IndexKind) String() string {
	switch k {
	case PrimaryIndex:
		return "primary"
	case UniqueIndex:
		return "unique"
	}
	return "index"
}

// IndexSettings customises a single-field index annotation
type IndexSettings struct {
	Name   string
	Sort   Sort
	Length int
}

// FieldIndex is an index annotation carried by a field
type FieldIndex struct {
	Kind     IndexKind
	Settings IndexSettings
}

// IndexItem is one column of an index. Length of 0 means the whole value.
type IndexItem struct {
	Field  string
	Column string
	Sort   Sort
	Length int
}

// Index is a compiled primary, unique or plain index
type Index struct {
	Kind  IndexKind
	Name  string
	Items []IndexItem
}

// Keys returns the field names covered by the index, in order
func (i Index) Keys() []string {
	keys := make([]string, len(i.Items))
	for n, item := range i.Items {
		keys[n] = item.Field
	}
	return keys
}

// Columns returns the column names covered by the index, in order
func (i Index) Columns() []string {
	cols := make([]string, len(i.Items))
	for n, item := range i.Items {
		cols[n] = item.Column
	}
	return cols
}

// IsUnique reports whether the index constrains uniqueness
func (i Index) IsUnique() bool { return i.Kind != PlainIndex }

func defaultIndexName(keys []string) string {
	return strings.Join(keys, "_")
}
