package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// SnapshotPath is where the state captured by a checkpoint lives
func (l *Log) SnapshotPath() string { return l.path + ".snap" }

// WriteSnapshot writes every record produced by emit to path as a stream
// of put entries. The file is replaced atomically.
func WriteSnapshot(path string, emit func(put func(key, val []byte) error) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	now := time.Now()
	var lsn uint64
	put := func(key, val []byte) error {
		lsn++
		e := Entry{LSN: lsn, Op: OpPut, Key: key, Value: val, Timestamp: now}
		_, err := w.Write(e.Encode())
		return err
	}
	if err := emit(put); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadSnapshot feeds each record in the snapshot at path to fn. A missing
// file is an empty snapshot; a damaged one is an error.
func ReadSnapshot(path string, fn func(key, val []byte) error) (int, error) {
	fd, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer fd.Close()

	r := bufio.NewReader(fd)
	n := 0
	for {
		e, err := readEntry(r)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("snapshot %s: %w", path, err)
		}
		if e.Op != OpPut {
			return n, fmt.Errorf("snapshot %s: %w: %s", path, ErrUnknownOp, e.Op)
		}
		if err := fn(e.Key, e.Value); err != nil {
			return n, err
		}
		n++
	}
}
