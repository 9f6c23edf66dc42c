package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMaxSegmentSize bounds a single journal file before rotation
const DefaultMaxSegmentSize = 64 << 20

// Op is one record mutation inside a committed batch
type Op struct {
	Type  OpType
	Key   []byte
	Value []byte
}

// Put records key=value
func Put(key, val []byte) Op { return Op{Type: OpPut, Key: key, Value: val} }

// Delete records the removal of key
func Delete(key []byte) Op { return Op{Type: OpDelete, Key: key} }

// Options tunes a Log
type Options struct {
	// MaxSegmentSize triggers rotation; zero means DefaultMaxSegmentSize
	MaxSegmentSize int64
	// NoSync skips fsync after each commit (tests, scratch stores)
	NoSync bool
}

// Log is an append-only journal split into numbered segment files named
// <base>.000000, <base>.000001, ...
type Log struct {
	path string
	opts Options

	mu       sync.Mutex
	fd       *os.File
	lsn      uint64
	txn      uint64
	size     int64
	index    int
	closed   bool
}

// Open opens or creates the journal at path and recovers its counters.
// A torn tail left by a crash is cut off so new entries follow intact data.
func Open(path string, opts Options) (*Log, error) {
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = DefaultMaxSegmentSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	l := &Log{path: path, opts: opts}
	files, err := l.segmentFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		if err := l.openSegment(0); err != nil {
			return nil, err
		}
		return l, nil
	}

	segs, err := readSegments(files)
	if err != nil {
		return nil, err
	}
	for _, s := range segs {
		for _, e := range s.entries {
			if e.LSN > l.lsn {
				l.lsn = e.LSN
			}
			if e.TxnID > l.txn {
				l.txn = e.TxnID
			}
		}
	}

	last := segs[len(segs)-1]
	if last.torn {
		if err := os.Truncate(last.path, last.valid); err != nil {
			return nil, fmt.Errorf("truncate torn tail: %w", err)
		}
	}
	idx, _ := l.segmentIndex(filepath.Base(last.path))
	if err := l.openSegment(idx); err != nil {
		return nil, err
	}
	return l, nil
}

// Path is the base path the segments are derived from
func (l *Log) Path() string { return l.path }

// LSN is the last assigned log sequence number
func (l *Log) LSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lsn
}

// Commit appends ops followed by a commit marker as one transaction and
// syncs the segment. It returns the transaction id.
func (l *Log) Commit(ops []Op) (uint64, error) {
	if len(ops) == 0 {
		return 0, ErrEmptyBatch
	}
	for _, op := range ops {
		if op.Type != OpPut && op.Type != OpDelete {
			return 0, fmt.Errorf("%w: %s", ErrUnknownOp, op.Type)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrLogClosed
	}

	l.txn++
	txn := l.txn
	now := time.Now()

	var buf []byte
	for _, op := range ops {
		l.lsn++
		e := Entry{LSN: l.lsn, TxnID: txn, Op: op.Type, Key: op.Key, Value: op.Value, Timestamp: now}
		buf = append(buf, e.Encode()...)
	}
	l.lsn++
	commit := Entry{LSN: l.lsn, TxnID: txn, Op: OpCommit, Timestamp: now}
	buf = append(buf, commit.Encode()...)

	if l.size > 0 && l.size+int64(len(buf)) > l.opts.MaxSegmentSize {
		if err := l.rotateLocked(); err != nil {
			return 0, err
		}
	}
	if err := l.appendLocked(buf); err != nil {
		return 0, err
	}
	if !l.opts.NoSync {
		if err := l.fd.Sync(); err != nil {
			return 0, err
		}
	}
	return txn, nil
}

// Files lists the segment files in order
func (l *Log) Files() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.segmentFiles()
}

// Close syncs and closes the current segment
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.fd.Sync(); err != nil {
		l.fd.Close()
		return err
	}
	return l.fd.Close()
}

func (l *Log) appendLocked(buf []byte) error {
	n, err := l.fd.Write(buf)
	l.size += int64(n)
	return err
}

func (l *Log) rotateLocked() error {
	if err := l.fd.Sync(); err != nil {
		return err
	}
	if err := l.fd.Close(); err != nil {
		return err
	}
	return l.openSegment(l.index + 1)
}

func (l *Log) openSegment(index int) error {
	fd, err := os.OpenFile(l.segmentPath(index), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return err
	}
	l.fd = fd
	l.index = index
	l.size = stat.Size()
	return nil
}

func (l *Log) segmentPath(index int) string {
	return fmt.Sprintf("%s.%06d", l.path, index)
}

func (l *Log) segmentIndex(name string) (int, bool) {
	prefix := filepath.Base(l.path) + "."
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func (l *Log) segmentFiles() ([]string, error) {
	dir := filepath.Dir(l.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type indexed struct {
		path  string
		index int
	}
	var found []indexed
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if idx, ok := l.segmentIndex(e.Name()); ok {
			found = append(found, indexed{path: filepath.Join(dir, e.Name()), index: idx})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].index < found[j].index })

	files := make([]string, len(found))
	for i, f := range found {
		files[i] = f.path
	}
	return files, nil
}
