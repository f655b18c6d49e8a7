// Package metrics provides Prometheus instrumentation for material-search.
//
// All metrics are registered with the default registry through promauto and
// prefixed with "material_search_". Expose them with promhttp.Handler().
//
// # Metric Categories
//
//   - HTTP: request counts, latency, in-flight requests
//   - Database: query counts and latency per operation
//   - Library: indexed images, videos and video frames (refreshed by [Collector])
//   - Watcher/queue: raw events, filtered events, pending paths, flushed batches
//   - Indexer/scanner: items per source and result, errors per stage, durations
//   - Embedding/search: model access wait time, inference time, search latency
//
// # Prometheus Queries
//
// Share of raw file events rejected by the path filter:
//
//	rate(material_search_watcher_events_filtered_total[5m]) /
//	sum(rate(material_search_watcher_events_total[5m]))
//
// P95 time spent queued behind the embedding model:
//
//	histogram_quantile(0.95, sum(rate(material_search_embedding_wait_seconds_bucket[5m])) by (le))
package metrics
