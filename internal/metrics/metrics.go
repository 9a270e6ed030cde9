// Package metrics exposes Prometheus collectors for the runtime's internals:
// allocator traffic, scheduler throughput, and the compile cache.
// Collectors register on the default registry; embedding programs serve them
// with promhttp as usual.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AllocPoolHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_alloc_pool_hits_total",
		Help: "Allocations satisfied from the free pool",
	}, []string{"device"})

	AllocPoolMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_alloc_pool_misses_total",
		Help: "Allocations requiring fresh device memory",
	}, []string{"device"})

	AllocBytesInUse = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "strand_alloc_bytes_in_use",
		Help: "Bytes currently handed out or awaiting fence completion",
	}, []string{"device"})

	AllocDeferred = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_alloc_deferred_total",
		Help: "Buffer releases deferred on outstanding asynchronous work",
	}, []string{"device"})

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_sched_tasks_enqueued_total",
		Help: "Tasks enqueued on device streams",
	}, []string{"device"})

	TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strand_sched_tasks_completed_total",
		Help: "Tasks completed on device streams",
	}, []string{"device"})

	CompileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strand_compile_cache_hits_total",
		Help: "Compiled-function calls served from the trace cache",
	})

	CompileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strand_compile_cache_misses_total",
		Help: "Compiled-function calls that required a fresh trace",
	})

	CompileTraces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "strand_compile_traces_total",
		Help: "Traces performed (deduplicated across concurrent callers)",
	})
)
