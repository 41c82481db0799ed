package volume

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volseg_slice_cache_hits_total",
		Help: "Slice lookups served from the cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volseg_slice_cache_misses_total",
		Help: "Slice lookups that required decoding from the source",
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volseg_slice_cache_evictions_total",
		Help: "Slices evicted from the cache",
	})

	cacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "volseg_slice_cache_bytes",
		Help: "Sample bytes currently held by all slice caches",
	})

	sliceDecodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volseg_slice_decodes_total",
		Help: "Slices read from a source, by outcome",
	}, []string{"outcome"})
)
