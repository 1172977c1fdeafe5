package metrics

// InitializeMetrics pre-populates the expected label combinations so that
// every series is exported from the first scrape.
func InitializeMetrics(tools []string, routes []string) {
	for _, tool := range tools {
		ToolAvailable.WithLabelValues(tool)
		for _, outcome := range []string{"success", "failed", "timeout", "unavailable"} {
			ToolInvocationsTotal.WithLabelValues(tool, outcome)
		}
	}

	for _, route := range routes {
		ConversionsTotal.WithLabelValues(route, "success")
		ConversionsTotal.WithLabelValues(route, "error")
		ConversionDuration.WithLabelValues(route)
		ConversionPanicsTotal.WithLabelValues(route)
	}

	for _, status := range []string{"ok", "not_found", "invalid_id", "error"} {
		DownloadsTotal.WithLabelValues(status)
	}

	for _, op := range []string{"stat", "open"} {
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}
}
