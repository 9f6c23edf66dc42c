package wal

import "fmt"

// ReplayFunc applies one committed record mutation
type ReplayFunc func(op OpType, key, value []byte) error

// Stats summarises a replay
type Stats struct {
	Entries    int    // intact entries read
	Committed  int    // transactions applied
	Discarded  int    // transactions without a commit marker
	Checkpoint uint64 // LSN of the last checkpoint, zero if none
}

// Transaction is the group of entries sharing one TxnID
type Transaction struct {
	TxnID     uint64
	StartLSN  uint64
	Entries   []*Entry
	Committed bool
	commitLSN uint64
}

// Replay applies every committed transaction written after the last
// checkpoint, in commit order. Entries before the checkpoint are covered
// by the snapshot taken with it.
func (l *Log) Replay(fn ReplayFunc) (Stats, error) {
	l.mu.Lock()
	files, err := l.segmentFiles()
	l.mu.Unlock()
	if err != nil {
		return Stats{}, err
	}
	entries, err := ReadAll(files)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Entries: len(entries)}
	start := 0
	for i, e := range entries {
		if e.Op == OpCheckpoint {
			stats.Checkpoint = e.LSN
			start = i + 1
		}
	}

	for _, txn := range groupByTransaction(entries[start:]) {
		if !txn.Committed {
			stats.Discarded++
			continue
		}
		for _, e := range txn.Entries {
			if err := fn(e.Op, e.Key, e.Value); err != nil {
				return stats, fmt.Errorf("replay lsn %d: %w", e.LSN, err)
			}
		}
		stats.Committed++
	}
	return stats, nil
}

// groupByTransaction collects record entries per transaction and orders
// committed transactions by their commit marker. Uncommitted ones trail.
func groupByTransaction(entries []*Entry) []*Transaction {
	byID := make(map[uint64]*Transaction)
	var order []*Transaction
	var open []*Transaction

	for _, e := range entries {
		if e.Op == OpCheckpoint {
			continue
		}
		txn, ok := byID[e.TxnID]
		if !ok {
			txn = &Transaction{TxnID: e.TxnID, StartLSN: e.LSN}
			byID[e.TxnID] = txn
			open = append(open, txn)
		}
		switch e.Op {
		case OpCommit:
			txn.Committed = true
			txn.commitLSN = e.LSN
			order = append(order, txn)
		case OpPut, OpDelete:
			txn.Entries = append(txn.Entries, e)
		}
	}

	for _, txn := range open {
		if !txn.Committed {
			order = append(order, txn)
		}
	}
	return order
}
