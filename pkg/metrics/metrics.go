// Package metrics provides the centralized Prometheus metrics registry
// for the TDVMS client. All metrics are defined in their respective
// packages (client, catalog, orchestrator) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the TDVMS client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - tdvms_requests_total{endpoint, status} (Counter): Remote requests by endpoint and HTTP status
//   - tdvms_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - tdvms_submission_results_total{result} (Counter): Submission outcomes
//     (success, busy, error, timeout, connection)
//
// Catalog Metrics (pkg/catalog):
//   - tdvms_catalog_cache_hits_total{backend} (Counter): Cache hits by backend (file, redis)
//   - tdvms_catalog_cache_misses_total (Counter): Cache misses
//   - tdvms_catalog_cache_size_bytes{backend} (Gauge): Last written cache entry size
//   - tdvms_catalog_cache_errors_total{operation} (Counter): Cache operation errors
//   - tdvms_catalog_hybrid_expansions_total (Counter): Synthetic stations from hybrid expansion
//
// Orchestrator Metrics (pkg/orchestrator):
//   - tdvms_batches_submitted_total (Counter): Batches submitted successfully
//   - tdvms_retry_waits_total{reason} (Counter): Backoff waits by retry reason (busy, server, connection)
//   - tdvms_submission_timeouts_total (Counter): Submissions skipped softly due to timeout
//
// Example Prometheus Queries:
//
//   # Progress of a long run
//   tdvms_batches_submitted_total
//
//   # Busy-signal pressure
//   rate(tdvms_retry_waits_total{reason="busy"}[15m])
//
//   # Catalog cache hit rate
//   sum(rate(tdvms_catalog_cache_hits_total[5m])) /
//   (sum(rate(tdvms_catalog_cache_hits_total[5m])) + sum(rate(tdvms_catalog_cache_misses_total[5m])))
//
//   # P95 submission latency
//   histogram_quantile(0.95, rate(tdvms_request_duration_seconds_bucket[5m]))
