/*
Package metrics provides Prometheus-based metrics collection for the
ReelVault core engine: upload throughput, restore activity, lifecycle
verification, queue depth, and errors.

# Core Components

Collector aggregates both Prometheus metrics (for scraping) and internal
operation tracking (for the debug endpoints).

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      8080,
		Path:      "/metrics",
		Namespace: "reelvault",
	})
	if err != nil {
		log.Fatal(err)
	}

	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

# Recording

The upload engine records parts and terminal completions. Recorders for
restore requests by tier and for lifecycle verification polls are also
provided; the restore orchestrator and the lifecycle controller do not
call them themselves:

	collector.RecordUploadPart(duration, partSize, err == nil)
	collector.RecordUploadComplete(duration, fileSize, err == nil)
	collector.RecordRestoreRequest("standard", err == nil)
	collector.RecordLifecycleVerify(duration, err == nil)

Queue composition can be pushed as gauges; the upload queue does not
push them itself:

	collector.UpdateQueueDepth("pending", pending)
	collector.UpdateActiveUploads(effectiveActive)

# Exported Metrics

Counters:
  - reelvault_operations_total{operation,status}
  - reelvault_errors_total{operation,type}

Histograms:
  - reelvault_operation_duration_seconds{operation}
  - reelvault_operation_size_bytes{operation}

Gauges:
  - reelvault_queue_depth{status}
  - reelvault_active_uploads
  - reelvault_active_connections

# HTTP Endpoints

/metrics serves Prometheus-formatted output; /health is a liveness
probe; /debug/metrics gives a human-readable summary without requiring
a scraper.

Keep metric cardinality low: operation names are a fixed vocabulary,
never object keys or file paths.

All Collector methods are safe for concurrent use.
*/
package metrics
