// Package keyspace persists objects into an ordered byte keyspace. Rows
// live under keyenc.EncodeKey(table, primary key); each unique index keeps
// entries under table#index that point back at the row key.
package keyspace

// Mutation is one change in an atomic batch
type Mutation struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Space is a byte keyspace. Implementations are safe for concurrent use
// and apply a batch all-or-nothing.
type Space interface {
	Get(key []byte) ([]byte, bool)
	Apply(batch []Mutation) error
	// Scan visits keys with prefix in ascending order until fn returns false
	Scan(prefix []byte, fn func(key, val []byte) bool)
}
