// Package kv is a durable process-local connector: an ordered in-memory
// index (google/btree) whose every batch is journaled to pkg/wal before it
// is applied. Open restores the last snapshot and replays the journal.
package kv

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/nainya/entitycore/internal/connector/keyspace"
	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/pkg/wal"
)

const btreeDegree = 32

// Options configures Open
type Options struct {
	// Path is the journal base path; segments and the snapshot sit beside it
	Path string
	// CheckpointInterval enables background checkpoints when positive
	CheckpointInterval time.Duration
	// NoSync skips fsync per commit
	NoSync  bool
	Logger  *logger.Logger
	OnCount keyspace.CountFunc
}

// Connector persists objects in the journaled index
type Connector struct {
	*keyspace.Store
	space *space
	cp    *wal.Checkpointer
	log   *logger.Logger
}

type item struct {
	key, val []byte
}

func less(a, b item) bool { return bytes.Compare(a.key, b.key) < 0 }

// Open recovers the store at opts.Path, creating it when absent
func Open(opts Options) (*Connector, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("kv: empty path")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	journal, err := wal.Open(opts.Path, wal.Options{NoSync: opts.NoSync})
	if err != nil {
		return nil, fmt.Errorf("kv: open journal: %w", err)
	}
	sp := &space{tree: btree.NewG[item](btreeDegree, less), journal: journal}

	start := time.Now()
	restored, err := wal.ReadSnapshot(journal.SnapshotPath(), func(k, v []byte) error {
		sp.tree.ReplaceOrInsert(item{key: k, val: v})
		return nil
	})
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("kv: restore snapshot: %w", err)
	}
	stats, err := journal.Replay(sp.replay)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("kv: replay journal: %w", err)
	}
	log.Info("kv store recovered").
		Str("path", opts.Path).
		Int("snapshot_records", restored).
		Int("transactions", stats.Committed).
		Int("discarded", stats.Discarded).
		Int("keys", sp.tree.Len()).
		Dur("duration", time.Since(start)).
		Send()

	c := &Connector{Store: keyspace.New(sp, opts.OnCount), space: sp, log: log}
	if opts.CheckpointInterval > 0 {
		c.cp = wal.NewCheckpointer(opts.CheckpointInterval, c.Checkpoint, func(err error) {
			log.Error("checkpoint failed").Err(err).Send()
		})
		c.cp.Start()
	}
	return c, nil
}

// Checkpoint snapshots the index and drops the journal written so far
func (c *Connector) Checkpoint() error {
	sp := c.space
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.journal.Checkpoint(func() error {
		return wal.WriteSnapshot(sp.journal.SnapshotPath(), func(put func(k, v []byte) error) error {
			var err error
			sp.tree.Ascend(func(it item) bool {
				err = put(it.key, it.val)
				return err == nil
			})
			return err
		})
	})
}

// Len is the number of keys held, rows and index entries together
func (c *Connector) Len() int {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()
	return c.space.tree.Len()
}

// Close stops background checkpoints and closes the journal
func (c *Connector) Close() error {
	if c.cp != nil {
		c.cp.Stop()
	}
	return c.space.journal.Close()
}

type space struct {
	mu      sync.RWMutex
	tree    *btree.BTreeG[item]
	journal *wal.Log
}

func (s *space) Get(key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.tree.Get(item{key: key})
	return it.val, ok
}

// Apply journals the batch and applies it only once the commit is durable
func (s *space) Apply(batch []keyspace.Mutation) error {
	ops := make([]wal.Op, len(batch))
	for i, m := range batch {
		if m.Delete {
			ops[i] = wal.Delete(m.Key)
		} else {
			ops[i] = wal.Put(m.Key, m.Value)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.journal.Commit(ops); err != nil {
		return err
	}
	for _, m := range batch {
		if m.Delete {
			s.tree.Delete(item{key: m.Key})
			continue
		}
		s.tree.ReplaceOrInsert(item{
			key: append([]byte(nil), m.Key...),
			val: append([]byte(nil), m.Value...),
		})
	}
	return nil
}

func (s *space) Scan(prefix []byte, fn func(key, val []byte) bool) {
	s.mu.RLock()
	var hits []item
	s.tree.AscendGreaterOrEqual(item{key: prefix}, func(it item) bool {
		if !bytes.HasPrefix(it.key, prefix) {
			return false
		}
		hits = append(hits, it)
		return true
	})
	s.mu.RUnlock()

	for _, it := range hits {
		if !fn(it.key, it.val) {
			return
		}
	}
}

func (s *space) replay(op wal.OpType, key, val []byte) error {
	switch op {
	case wal.OpPut:
		s.tree.ReplaceOrInsert(item{key: key, val: val})
	case wal.OpDelete:
		s.tree.Delete(item{key: key})
	default:
		return fmt.Errorf("%w: %s", wal.ErrUnknownOp, op)
	}
	return nil
}
