package keyspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nainya/entitycore/internal/keyenc"
	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
	"github.com/nainya/entitycore/pkg/value"
)

// ErrNullPrimary is wrapped when a row would be stored without a key
var ErrNullPrimary = errors.New("primary key is null")

// CountFunc receives the row count of a model after every write
type CountFunc func(model string, rows int)

// Store implements object.Connector and object.Finder over a Space.
// Writes are serialised so a uniqueness check and its batch are atomic.
type Store struct {
	space   Space
	onCount CountFunc

	mu     sync.Mutex
	seq    map[string]int64
	counts map[string]int
}

// New creates a store over space; onCount may be nil
func New(space Space, onCount CountFunc) *Store {
	return &Store{
		space:   space,
		onCount: onCount,
		seq:     make(map[string]int64),
		counts:  make(map[string]int),
	}
}

var (
	_ object.Connector = (*Store)(nil)
	_ object.Finder    = (*Store)(nil)
)

// SaveObject inserts a new object or rewrites a persisted one. A single
// integer auto-increment primary without a value is assigned the next id.
func (s *Store) SaveObject(ctx context.Context, obj *object.Object) error {
	if err := ctx.Err(); err != nil {
		return errs.Connector("save", err)
	}
	m := obj.Model()
	row := obj.SaveValues()
	primary := m.Primary().Keys()

	s.mu.Lock()
	defer s.mu.Unlock()

	var assigned *model.Field
	if obj.IsNew() {
		if pf, ok := m.PrimaryField(); ok && pf.AutoIncrement && row[pf.Name].IsNull() {
			next, err := s.nextIDLocked(m, pf.Name)
			if err != nil {
				return errs.Connector("save", err)
			}
			row[pf.Name] = value.Int(next)
			assigned = pf
		}
	}

	pk, ok := project(row, primary)
	if !ok {
		return errs.Connector("save", fmt.Errorf("%s: %w", m.Name(), ErrNullPrimary))
	}
	newKey, err := keyenc.EncodeKey(m.Table(), pk)
	if err != nil {
		return errs.Connector("save", err)
	}

	var oldKey []byte
	var oldRow map[string]value.Value
	if obj.IsNew() {
		if _, exists := s.space.Get(newKey); exists {
			return errs.Connector("save", fmt.Errorf("%s %s: %w", m.Name(), m.Primary().Name, object.ErrUniqueViolation))
		}
	} else {
		oldKey, oldRow, err = s.loadPersisted(obj)
		if err != nil {
			return errs.Connector("save", err)
		}
		if !bytes.Equal(oldKey, newKey) {
			if _, exists := s.space.Get(newKey); exists {
				return errs.Connector("save", fmt.Errorf("%s %s: %w", m.Name(), m.Primary().Name, object.ErrUniqueViolation))
			}
		}
	}

	data, err := encodeRow(m, row)
	if err != nil {
		return errs.Connector("save", err)
	}

	var deletes, puts []Mutation
	if oldKey != nil && !bytes.Equal(oldKey, newKey) {
		deletes = append(deletes, Mutation{Key: oldKey, Delete: true})
	}
	puts = append(puts, Mutation{Key: newKey, Value: data})

	for _, idx := range m.Indices() {
		if idx.Kind != model.UniqueIndex {
			continue
		}
		ns := indexNamespace(m, idx)
		var oldEntry, newEntry []byte
		if oldRow != nil {
			if vals, ok := project(oldRow, idx.Keys()); ok {
				if oldEntry, err = keyenc.EncodeKey(ns, vals); err != nil {
					return errs.Connector("save", err)
				}
			}
		}
		if vals, ok := project(row, idx.Keys()); ok {
			if newEntry, err = keyenc.EncodeKey(ns, vals); err != nil {
				return errs.Connector("save", err)
			}
			if owner, exists := s.space.Get(newEntry); exists && !bytes.Equal(owner, newKey) && !bytes.Equal(owner, oldKey) {
				return errs.Connector("save", fmt.Errorf("%s %s: %w", m.Name(), idx.Name, object.ErrUniqueViolation))
			}
		}
		if oldEntry != nil && !bytes.Equal(oldEntry, newEntry) {
			deletes = append(deletes, Mutation{Key: oldEntry, Delete: true})
		}
		if newEntry != nil {
			puts = append(puts, Mutation{Key: newEntry, Value: newKey})
		}
	}

	if err := s.space.Apply(append(deletes, puts...)); err != nil {
		return errs.Connector("save", err)
	}
	if oldRow == nil {
		s.adjustCountLocked(m, 1)
	}
	if assigned != nil {
		if id, ok := row[assigned.Name].AsInt(); ok && id > s.seq[m.Table()] {
			s.seq[m.Table()] = id
		}
		if err := obj.SetValue(assigned.Name, row[assigned.Name]); err != nil {
			return errs.Connector("save", err)
		}
	} else if pf, ok := m.PrimaryField(); ok && pf.AutoIncrement {
		s.bumpSeqLocked(m, row[pf.Name])
	}
	return nil
}

// DeleteObject removes the stored row and its unique index entries
func (s *Store) DeleteObject(ctx context.Context, obj *object.Object) error {
	if err := ctx.Err(); err != nil {
		return errs.Connector("delete", err)
	}
	m := obj.Model()

	s.mu.Lock()
	defer s.mu.Unlock()

	key, row, err := s.loadPersisted(obj)
	if err != nil {
		return errs.Connector("delete", err)
	}

	batch := []Mutation{{Key: key, Delete: true}}
	for _, idx := range m.Indices() {
		if idx.Kind != model.UniqueIndex {
			continue
		}
		if vals, ok := project(row, idx.Keys()); ok {
			entry, err := keyenc.EncodeKey(indexNamespace(m, idx), vals)
			if err != nil {
				return errs.Connector("delete", err)
			}
			batch = append(batch, Mutation{Key: entry, Delete: true})
		}
	}
	if err := s.space.Apply(batch); err != nil {
		return errs.Connector("delete", err)
	}
	s.adjustCountLocked(m, -1)
	return nil
}

// FindUnique returns the row whose primary key or unique index matches
// where exactly. Any other key combination is KeysUnallowed.
func (s *Store) FindUnique(ctx context.Context, m *model.Model, where map[string]value.Value) (map[string]value.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Connector("find", err)
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	idx, ok := m.UniqueIndexFor(keys...)
	if !ok {
		return nil, errs.KeysUnallowed(keys...)
	}
	vals, ok := project(where, idx.Keys())
	if !ok {
		return nil, errs.NotFound(m.Name())
	}

	var rowKey []byte
	var err error
	if idx.Kind == model.PrimaryIndex {
		rowKey, err = keyenc.EncodeKey(m.Table(), vals)
	} else {
		var entry []byte
		entry, err = keyenc.EncodeKey(indexNamespace(m, idx), vals)
		if err == nil {
			var found bool
			if rowKey, found = s.space.Get(entry); !found {
				return nil, errs.NotFound(m.Name())
			}
		}
	}
	if err != nil {
		return nil, errs.Connector("find", err)
	}

	data, found := s.space.Get(rowKey)
	if !found {
		return nil, errs.NotFound(m.Name())
	}
	row, err := decodeRow(data)
	if err != nil {
		return nil, errs.Connector("find", err)
	}
	return row, nil
}

// Rows visits the stored rows of m in primary key order until fn
// returns false
func (s *Store) Rows(m *model.Model, fn func(row map[string]value.Value) bool) error {
	var decodeErr error
	s.space.Scan(keyenc.Prefix(m.Table()), func(_, val []byte) bool {
		row, err := decodeRow(val)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(row)
	})
	return decodeErr
}

// Count returns the number of stored rows of m
func (s *Store) Count(m *model.Model) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(m)
}

// loadPersisted fetches the row addressed by the identifier the object was
// last saved under
func (s *Store) loadPersisted(obj *object.Object) ([]byte, map[string]value.Value, error) {
	m := obj.Model()
	ids := obj.PersistedIdentifierValues()
	pk, ok := project(ids, m.Primary().Keys())
	if !ok {
		return nil, nil, errs.NotFound(m.Name())
	}
	key, err := keyenc.EncodeKey(m.Table(), pk)
	if err != nil {
		return nil, nil, err
	}
	data, found := s.space.Get(key)
	if !found {
		return nil, nil, errs.NotFound(m.Name())
	}
	row, err := decodeRow(data)
	if err != nil {
		return nil, nil, err
	}
	return key, row, nil
}

func (s *Store) nextIDLocked(m *model.Model, field string) (int64, error) {
	if _, ok := s.seq[m.Table()]; !ok {
		var max int64
		var scanErr error
		s.space.Scan(keyenc.Prefix(m.Table()), func(_, val []byte) bool {
			row, err := decodeRow(val)
			if err != nil {
				scanErr = err
				return false
			}
			if id, ok := row[field].AsInt(); ok && id > max {
				max = id
			}
			return true
		})
		if scanErr != nil {
			return 0, scanErr
		}
		s.seq[m.Table()] = max
	}
	return s.seq[m.Table()] + 1, nil
}

func (s *Store) bumpSeqLocked(m *model.Model, id value.Value) {
	n, ok := id.AsInt()
	if !ok {
		return
	}
	if cur, seen := s.seq[m.Table()]; seen && n > cur {
		s.seq[m.Table()] = n
	}
}

func (s *Store) countLocked(m *model.Model) int {
	if n, ok := s.counts[m.Table()]; ok {
		return n
	}
	n := 0
	s.space.Scan(keyenc.Prefix(m.Table()), func(_, _ []byte) bool {
		n++
		return true
	})
	s.counts[m.Table()] = n
	return n
}

func (s *Store) adjustCountLocked(m *model.Model, delta int) {
	if _, ok := s.counts[m.Table()]; !ok {
		// the scan already sees this write
		s.countLocked(m)
	} else {
		s.counts[m.Table()] += delta
	}
	if s.onCount != nil {
		s.onCount(m.Name(), s.counts[m.Table()])
	}
}
