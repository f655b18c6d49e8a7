// Package indexer keeps the asset store in step with the file system.
//
// Incremental consumes debounced batches from the watcher queue and applies
// each entry on a single worker goroutine: deletions drop the record,
// creations and modifications re-extract the file. Scanner walks every
// asset root, re-extracts files whose stored modification time (or
// checksum) no longer matches and removes records for files that are gone.
//
// Both share an Extractor, which decodes images or samples video frames
// and embeds them, and a PathLocks table so a path is never extracted by
// both at once. Counters for /api/status live in Status.
package indexer
