package telemetry

import (
	"sync"

	"github.com/banshee-data/lanepilot/internal/monitoring"
)

// RunLog writes ticks and transitions for one run on a background
// goroutine so the control loop never waits on SQLite. When the queue is
// full new records are dropped and counted.
type RunLog struct {
	store *Store
	runID string
	queue chan any

	mu      sync.Mutex
	closed  bool
	dropped uint64
	failed  uint64
	done    chan struct{}
}

// NewRunLog starts a writer for runID with room for queueSize pending
// records.
func (s *Store) NewRunLog(runID string, queueSize int) *RunLog {
	if queueSize < 1 {
		queueSize = 256
	}
	l := &RunLog{
		store: s,
		runID: runID,
		queue: make(chan any, queueSize),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l
}

// RunID returns the run the log writes to.
func (l *RunLog) RunID() string { return l.runID }

func (l *RunLog) RecordTick(t Tick) error {
	l.enqueue(t)
	return nil
}

func (l *RunLog) RecordTransition(tr Transition) error {
	l.enqueue(tr)
	return nil
}

func (l *RunLog) enqueue(v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.dropped++
		return
	}
	select {
	case l.queue <- v:
	default:
		l.dropped++
	}
}

func (l *RunLog) drain() {
	defer close(l.done)
	for v := range l.queue {
		var err error
		switch rec := v.(type) {
		case Tick:
			err = l.store.RecordTick(l.runID, rec)
		case Transition:
			err = l.store.RecordTransition(l.runID, rec)
		}
		if err != nil {
			l.mu.Lock()
			l.failed++
			l.mu.Unlock()
			monitoring.Logf("telemetry: run %s: %v", l.runID, err)
		}
	}
}

// Close flushes pending records and stops the writer. Records arriving
// after Close are dropped.
func (l *RunLog) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

// Counts reports records dropped because the queue was full or closed, and
// records that failed to write.
func (l *RunLog) Counts() (dropped, failed uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped, l.failed
}
