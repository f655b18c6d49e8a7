// Package queue implements the debounced, coalescing event queue between the
// file watcher and the incremental indexer.
//
// The queue holds at most one entry per path; a later event overwrites the
// kind of an earlier one. Every Enqueue cancels the single debounce timer and
// starts a new one. When the timer expires the pending map is swapped for an
// empty one and delivered as a single Batch. Close flushes what is left so no
// event is lost on a graceful stop.
package queue
