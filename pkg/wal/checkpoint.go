package wal

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultCheckpointInterval is how often a Checkpointer runs
const DefaultCheckpointInterval = 10 * time.Minute

// Checkpoint calls flush to persist the full state, records a checkpoint
// marker and starts a fresh segment. Older segments are then removed.
// Commits are blocked while flush runs, so the flushed state matches the
// journal exactly.
func (l *Log) Checkpoint(flush func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLogClosed
	}

	if err := flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}

	l.lsn++
	marker := Entry{LSN: l.lsn, Op: OpCheckpoint, Timestamp: time.Now()}
	if err := l.appendLocked(marker.Encode()); err != nil {
		return fmt.Errorf("write checkpoint entry: %w", err)
	}
	if err := l.rotateLocked(); err != nil {
		return fmt.Errorf("rotate after checkpoint: %w", err)
	}

	files, err := l.segmentFiles()
	if err != nil {
		return err
	}
	current := l.segmentPath(l.index)
	for _, f := range files {
		if f == current {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", f, err)
		}
	}
	return nil
}

// Checkpointer runs a checkpoint function on a fixed interval. Owners of
// state pass a function that takes their own lock before calling
// Log.Checkpoint, keeping lock order state then journal.
type Checkpointer struct {
	interval   time.Duration
	checkpoint func() error
	onError    func(error)

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewCheckpointer creates a checkpointer; onError may be nil
func NewCheckpointer(interval time.Duration, checkpoint func() error, onError func(error)) *Checkpointer {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Checkpointer{
		interval:   interval,
		checkpoint: checkpoint,
		onError:    onError,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start runs the loop in a goroutine
func (c *Checkpointer) Start() {
	go c.run()
}

// Stop ends the loop and waits for it to exit
func (c *Checkpointer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

func (c *Checkpointer) run() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.checkpoint(); err != nil && c.onError != nil {
				c.onError(err)
			}
		case <-c.stopCh:
			return
		}
	}
}
