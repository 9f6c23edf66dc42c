package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestLog(t *testing.T, opts Options) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.wal")
	opts.NoSync = true
	l, err := Open(path, opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return l, path
}

func replayAll(t *testing.T, l *Log) (map[string]string, Stats) {
	t.Helper()
	state := make(map[string]string)
	stats, err := l.Replay(func(op OpType, key, val []byte) error {
		switch op {
		case OpPut:
			state[string(key)] = string(val)
		case OpDelete:
			delete(state, string(key))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	return state, stats
}

func TestEntryEncodeDecode(t *testing.T) {
	entry := &Entry{
		LSN:       42,
		TxnID:     7,
		Op:        OpPut,
		Key:       []byte("users/1"),
		Value:     []byte(`{"id":1}`),
		Timestamp: time.Unix(0, 1700000000123456789),
	}

	decoded, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.LSN != 42 || decoded.TxnID != 7 || decoded.Op != OpPut {
		t.Errorf("header mismatch: %s", decoded)
	}
	if string(decoded.Key) != "users/1" || string(decoded.Value) != `{"id":1}` {
		t.Errorf("payload mismatch: key=%q val=%q", decoded.Key, decoded.Value)
	}
	if !decoded.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("timestamp mismatch: got %v, want %v", decoded.Timestamp, entry.Timestamp)
	}
}

func TestEntryDecodeDamaged(t *testing.T) {
	entry := &Entry{LSN: 1, TxnID: 1, Op: OpDelete, Key: []byte("k")}
	data := entry.Encode()

	if _, err := DecodeEntry(data[:len(data)-2]); !errors.Is(err, ErrTruncated) {
		t.Errorf("short entry: got %v, want ErrTruncated", err)
	}

	flipped := append([]byte(nil), data...)
	flipped[EntryHeaderSize] ^= 0xFF
	if _, err := DecodeEntry(flipped); !errors.Is(err, ErrCorrupted) {
		t.Errorf("flipped byte: got %v, want ErrCorrupted", err)
	}
}

func TestCommitAndReplay(t *testing.T) {
	l, path := openTestLog(t, Options{})

	for i := 0; i < 3; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		if _, err := l.Commit([]Op{Put(key, []byte(fmt.Sprintf("value-%d", i)))}); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if _, err := l.Commit([]Op{Delete([]byte("key-1"))}); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.LSN(); got != 8 {
		t.Errorf("LSN after reopen: got %d, want 8", got)
	}

	state, stats := replayAll(t, reopened)
	if stats.Committed != 4 || stats.Discarded != 0 {
		t.Errorf("stats: %+v", stats)
	}
	want := map[string]string{"key-0": "value-0", "key-2": "value-2"}
	if len(state) != len(want) {
		t.Fatalf("state: got %v, want %v", state, want)
	}
	for k, v := range want {
		if state[k] != v {
			t.Errorf("%s: got %q, want %q", k, state[k], v)
		}
	}

	txn, err := reopened.Commit([]Op{Put([]byte("key-3"), nil)})
	if err != nil {
		t.Fatalf("commit after reopen: %v", err)
	}
	if txn != 5 {
		t.Errorf("txn id after reopen: got %d, want 5", txn)
	}
}

func TestCommitRejectsBadBatches(t *testing.T) {
	l, _ := openTestLog(t, Options{})
	defer l.Close()

	if _, err := l.Commit(nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("empty batch: got %v", err)
	}
	if _, err := l.Commit([]Op{{Type: OpCommit}}); !errors.Is(err, ErrUnknownOp) {
		t.Errorf("commit op in batch: got %v", err)
	}
}

func TestCommitAfterClose(t *testing.T) {
	l, _ := openTestLog(t, Options{})
	l.Close()

	if _, err := l.Commit([]Op{Put([]byte("k"), []byte("v"))}); !errors.Is(err, ErrLogClosed) {
		t.Errorf("got %v, want ErrLogClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestUncommittedTransactionDiscarded(t *testing.T) {
	l, path := openTestLog(t, Options{})
	if _, err := l.Commit([]Op{Put([]byte("a"), []byte("1"))}); err != nil {
		t.Fatal(err)
	}

	// simulate a crash between the record and its commit marker
	l.mu.Lock()
	l.lsn++
	dangling := Entry{LSN: l.lsn, TxnID: 99, Op: OpPut, Key: []byte("b"), Value: []byte("2")}
	if err := l.appendLocked(dangling.Encode()); err != nil {
		t.Fatal(err)
	}
	l.mu.Unlock()
	l.Close()

	reopened, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	state, stats := replayAll(t, reopened)
	if stats.Committed != 1 || stats.Discarded != 1 {
		t.Errorf("stats: %+v", stats)
	}
	if _, ok := state["b"]; ok {
		t.Error("uncommitted record was replayed")
	}
}

func TestTornTailIsTruncated(t *testing.T) {
	l, path := openTestLog(t, Options{})
	if _, err := l.Commit([]Op{Put([]byte("a"), []byte("1"))}); err != nil {
		t.Fatal(err)
	}
	files, _ := l.Files()
	l.Close()

	stat, err := os.Stat(files[0])
	if err != nil {
		t.Fatal(err)
	}
	intact := stat.Size()

	partial := (&Entry{LSN: 3, TxnID: 2, Op: OpPut, Key: []byte("b"), Value: []byte("2")}).Encode()
	fd, err := os.OpenFile(files[0], os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	fd.Write(partial[:len(partial)/2])
	fd.Close()

	reopened, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatalf("reopen with torn tail: %v", err)
	}
	defer reopened.Close()

	stat, _ = os.Stat(files[0])
	if stat.Size() != intact {
		t.Errorf("size after truncate: got %d, want %d", stat.Size(), intact)
	}

	if _, err := reopened.Commit([]Op{Put([]byte("c"), []byte("3"))}); err != nil {
		t.Fatal(err)
	}
	state, _ := replayAll(t, reopened)
	if state["a"] != "1" || state["c"] != "3" || len(state) != 2 {
		t.Errorf("state after torn tail: %v", state)
	}
}

func TestRotation(t *testing.T) {
	l, _ := openTestLog(t, Options{MaxSegmentSize: 150})
	defer l.Close()

	for i := 0; i < 10; i++ {
		op := Put([]byte(fmt.Sprintf("key-%d", i)), []byte("value"))
		if _, err := l.Commit([]Op{op}); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}

	files, err := l.Files()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 10 {
		t.Errorf("segments: got %d, want 10", len(files))
	}

	state, stats := replayAll(t, l)
	if len(state) != 10 || stats.Committed != 10 {
		t.Errorf("replay across segments: %d records, %+v", len(state), stats)
	}
}

func TestCorruptSealedSegment(t *testing.T) {
	l, path := openTestLog(t, Options{MaxSegmentSize: 150})
	for i := 0; i < 2; i++ {
		if _, err := l.Commit([]Op{Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))}); err != nil {
			t.Fatal(err)
		}
	}
	files, _ := l.Files()
	l.Close()
	if len(files) != 2 {
		t.Fatalf("segments: got %d, want 2", len(files))
	}

	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	data[EntryHeaderSize] ^= 0xFF
	if err := os.WriteFile(files[0], data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path, Options{}); !errors.Is(err, ErrCorrupted) {
		t.Errorf("got %v, want ErrCorrupted", err)
	}
}
