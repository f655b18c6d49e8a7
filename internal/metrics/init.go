package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, t := range []string{"image", "video", "video_frame"} {
		AssetsTotal.WithLabelValues(t)
	}

	for _, ev := range []string{"create", "write", "remove", "rename", "chmod"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}

	for _, source := range []string{"watch", "scan"} {
		for _, result := range []string{"indexed", "deleted", "skipped", "error"} {
			IndexerItemsTotal.WithLabelValues(source, result)
		}
	}

	for _, stage := range []string{"stat", "decode", "embed", "store", "sample"} {
		IndexerErrors.WithLabelValues(stage)
	}

	for _, t := range []string{"image", "video"} {
		ExtractionDuration.WithLabelValues(t)
	}

	for _, kind := range []string{"image", "text"} {
		EmbeddingRequestsTotal.WithLabelValues(kind, "success")
		EmbeddingRequestsTotal.WithLabelValues(kind, "error")
		EmbeddingDuration.WithLabelValues(kind)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	for _, status := range []string{"success", "failure"} {
		AuthAttemptsTotal.WithLabelValues(status)
	}
}
