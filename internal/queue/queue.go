package queue

import (
	"fmt"
	"sync"
	"time"

	"material-search/internal/logging"
	"material-search/internal/metrics"
)

// DefaultDelay is the debounce window used when none is configured.
const DefaultDelay = 2 * time.Second

// EventKind is the latest observed change for a queued path.
type EventKind int

const (
	// Created means the file appeared (including moves into a watched root).
	Created EventKind = iota + 1
	// Modified means the file's contents changed.
	Modified
	// Deleted means the file disappeared (including moves out).
	Deleted
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Batch maps each path to the kind of its last event in the window.
type Batch map[string]EventKind

// Queue coalesces events per path and releases them as one Batch once no new
// event has arrived for the debounce delay. Batches are delivered in order on
// the channel returned by Batches.
type Queue struct {
	delay time.Duration

	mu      sync.Mutex
	pending Batch
	timer   *time.Timer
	gen     uint64
	ready   []Batch
	closed  bool

	wake chan struct{}
	out  chan Batch
	done chan struct{}
}

// New creates a queue and starts its dispatcher. A non-positive delay uses
// DefaultDelay.
func New(delay time.Duration) *Queue {
	if delay <= 0 {
		delay = DefaultDelay
	}
	q := &Queue{
		delay:   delay,
		pending: make(Batch),
		wake:    make(chan struct{}, 1),
		out:     make(chan Batch),
		done:    make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Batches returns the channel of flushed batches. It is closed after Close
// once every pending batch has been received.
func (q *Queue) Batches() <-chan Batch {
	return q.out
}

// Enqueue records kind as the latest event for path and restarts the
// debounce timer. Events after Close are dropped.
func (q *Queue) Enqueue(path string, kind EventKind) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		logging.Warn("Queue closed, dropping %s event for %s", kind, path)
		metrics.WatcherEventsDropped.Inc()
		return
	}

	q.pending[path] = kind
	metrics.QueuePending.Set(float64(len(q.pending)))
	logging.Debug("Queued %s (%s)", path, kind)

	q.resetTimerLocked()
}

// resetTimerLocked replaces the single timer slot. A timer that already
// fired but has not yet taken the lock sees a newer generation and exits.
func (q *Queue) resetTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
	}
	q.gen++
	gen := q.gen
	q.timer = time.AfterFunc(q.delay, func() { q.fire(gen) })
}

func (q *Queue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.gen++
}

func (q *Queue) fire(gen uint64) {
	q.mu.Lock()
	if gen != q.gen || q.closed {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	q.flushLocked()
	q.mu.Unlock()
	q.signal()
}

// flushLocked swaps pending for an empty map and schedules it for delivery.
// An empty queue produces no batch.
func (q *Queue) flushLocked() {
	if len(q.pending) == 0 {
		return
	}
	batch := q.pending
	q.pending = make(Batch)
	q.ready = append(q.ready, batch)

	metrics.QueuePending.Set(0)
	metrics.QueueBatchesTotal.Inc()
	metrics.QueueBatchSize.Observe(float64(len(batch)))
	logging.Debug("Flushing %d queued paths", len(batch))
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// DrainNow cancels the debounce timer and hands whatever is pending to the
// consumer immediately.
func (q *Queue) DrainNow() {
	q.mu.Lock()
	q.stopTimerLocked()
	q.flushLocked()
	q.mu.Unlock()
	q.signal()
}

// Close drains pending events and stops accepting new ones. The Batches
// channel closes once the consumer has received everything.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.stopTimerLocked()
	q.flushLocked()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Done is closed when the dispatcher has delivered the final batch.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of paths waiting for the debounce window.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) dispatch() {
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			batch := q.ready[0]
			q.ready[0] = nil
			q.ready = q.ready[1:]
			q.mu.Unlock()
			q.out <- batch
			continue
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			close(q.out)
			return
		}
		<-q.wake
	}
}
