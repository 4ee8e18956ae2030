package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks catalog cache hits by backend (file, redis)
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdvms_catalog_cache_hits_total",
			Help: "Total number of catalog cache hits",
		},
		[]string{"backend"},
	)

	// cacheMisses tracks catalog cache misses
	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tdvms_catalog_cache_misses_total",
			Help: "Total number of catalog cache misses",
		},
	)

	// cacheSize tracks the size of the last written cache entry by backend
	cacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tdvms_catalog_cache_size_bytes",
			Help: "Size of the most recently written catalog cache entry in bytes",
		},
		[]string{"backend"},
	)

	// cacheErrors tracks cache operation errors
	cacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdvms_catalog_cache_errors_total",
			Help: "Total number of catalog cache operation errors",
		},
		[]string{"operation"}, // "get", "set"
	)

	// hybridExpansions tracks how many synthetic stations expansion produced
	hybridExpansions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tdvms_catalog_hybrid_expansions_total",
			Help: "Total number of synthetic stations produced by hybrid expansion",
		},
	)
)
