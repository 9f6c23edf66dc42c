package wal

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"
)

func snapshotOf(state map[string]string) func(put func(key, val []byte) error) error {
	return func(put func(key, val []byte) error) error {
		keys := make([]string, 0, len(state))
		for k := range state {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := put([]byte(k), []byte(state[k])); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestCheckpointAndRecover(t *testing.T) {
	l, path := openTestLog(t, Options{})
	state := make(map[string]string)

	for i := 0; i < 3; i++ {
		k, v := fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i)
		if _, err := l.Commit([]Op{Put([]byte(k), []byte(v))}); err != nil {
			t.Fatal(err)
		}
		state[k] = v
	}

	err := l.Checkpoint(func() error {
		return WriteSnapshot(l.SnapshotPath(), snapshotOf(state))
	})
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	files, _ := l.Files()
	if len(files) != 1 {
		t.Errorf("segments after checkpoint: got %d, want 1", len(files))
	}

	if _, err := l.Commit([]Op{Put([]byte("key-3"), []byte("value-3")), Delete([]byte("key-0"))}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	reopened, err := Open(path, Options{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	recovered := make(map[string]string)
	n, err := ReadSnapshot(reopened.SnapshotPath(), func(k, v []byte) error {
		recovered[string(k)] = string(v)
		return nil
	})
	if err != nil || n != 3 {
		t.Fatalf("read snapshot: n=%d err=%v", n, err)
	}

	stats, err := reopened.Replay(func(op OpType, k, v []byte) error {
		if op == OpDelete {
			delete(recovered, string(k))
			return nil
		}
		recovered[string(k)] = string(v)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Committed != 1 {
		t.Errorf("replayed after checkpoint: got %d, want 1", stats.Committed)
	}

	want := map[string]string{"key-1": "value-1", "key-2": "value-2", "key-3": "value-3"}
	if len(recovered) != len(want) {
		t.Fatalf("recovered: got %v, want %v", recovered, want)
	}
	for k, v := range want {
		if recovered[k] != v {
			t.Errorf("%s: got %q, want %q", k, recovered[k], v)
		}
	}
}

func TestCheckpointFlushFailureKeepsSegments(t *testing.T) {
	l, _ := openTestLog(t, Options{MaxSegmentSize: 150})
	defer l.Close()
	for i := 0; i < 3; i++ {
		l.Commit([]Op{Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))})
	}
	before, _ := l.Files()

	boom := errors.New("disk full")
	if err := l.Checkpoint(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("got %v, want flush error", err)
	}

	after, _ := l.Files()
	if len(after) != len(before) {
		t.Errorf("segments changed on failed checkpoint: %d -> %d", len(before), len(after))
	}
}

func TestReadSnapshotMissing(t *testing.T) {
	l, _ := openTestLog(t, Options{})
	defer l.Close()

	n, err := ReadSnapshot(l.SnapshotPath(), func(k, v []byte) error { return nil })
	if err != nil || n != 0 {
		t.Errorf("missing snapshot: n=%d err=%v", n, err)
	}
}

func TestCheckpointerRunsPeriodically(t *testing.T) {
	var runs atomic.Int32
	var failures atomic.Int32
	c := NewCheckpointer(5*time.Millisecond, func() error {
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		return nil
	}, func(error) { failures.Add(1) })

	c.Start()
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Stop()
	c.Stop()

	if runs.Load() < 3 {
		t.Errorf("checkpoint ran %d times", runs.Load())
	}
	if failures.Load() != 1 {
		t.Errorf("errors reported: got %d, want 1", failures.Load())
	}
}
