// Package memory is a process-local connector. Records vanish with the
// process; unique indices are enforced the same way as the kv connector.
package memory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/nainya/entitycore/internal/connector/keyspace"
)

// Connector persists objects in a map guarded by a RWMutex
type Connector struct {
	*keyspace.Store
	space *space
}

// New creates an empty connector; onCount may be nil
func New(onCount keyspace.CountFunc) *Connector {
	sp := &space{data: make(map[string][]byte)}
	return &Connector{Store: keyspace.New(sp, onCount), space: sp}
}

// Len is the number of keys held, rows and index entries together
func (c *Connector) Len() int {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()
	return len(c.space.data)
}

// Close is a no-op
func (c *Connector) Close() error { return nil }

type space struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (s *space) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[string(key)]
	return v, ok
}

func (s *space) Apply(batch []keyspace.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range batch {
		if m.Delete {
			delete(s.data, string(m.Key))
			continue
		}
		s.data[string(m.Key)] = append([]byte(nil), m.Value...)
	}
	return nil
}

func (s *space) Scan(prefix []byte, fn func(key, val []byte) bool) {
	s.mu.RLock()
	keys := make([]string, 0)
	for k := range s.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = s.data[k]
	}
	s.mu.RUnlock()

	for i, k := range keys {
		if !fn([]byte(k), vals[i]) {
			return
		}
	}
}
