package stats

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheMetricsMu          sync.Mutex
	cacheMetricsInitialized bool

	cacheHitCounter    prometheus.Counter
	cacheMissCounter   prometheus.Counter
	aggregateHistogram prometheus.Histogram
	cacheMetricsError  error
)

// SetupCacheMetrics registers the dashboard cache collectors once.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	cacheMetricsMu.Lock()
	defer cacheMetricsMu.Unlock()
	if cacheMetricsInitialized {
		return cacheMetricsError
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetdash_stats_cache_hits_total",
		Help: "Number of dashboard stats served from cache.",
	})
	misses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleetdash_stats_cache_miss_total",
		Help: "Number of dashboard stats rebuilt from quotes.",
	})
	build := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetdash_stats_aggregate_duration_seconds",
		Help:    "Duration required to aggregate dashboard stats.",
		Buckets: prometheus.DefBuckets,
	})

	collectors := []prometheus.Collector{hits, misses, build}
	for i, collector := range collectors {
		err := reg.Register(collector)
		if err == nil {
			continue
		}
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			cacheMetricsError = err
			cacheMetricsInitialized = true
			return err
		}
		switch c := already.ExistingCollector.(type) {
		case prometheus.Counter:
			if i == 0 {
				hits = c
			} else {
				misses = c
			}
		case prometheus.Histogram:
			build = c
		default:
			cacheMetricsError = fmt.Errorf("stats cache metrics: unexpected collector type %T", c)
		}
	}
	cacheHitCounter, cacheMissCounter, aggregateHistogram = hits, misses, build
	cacheMetricsInitialized = true
	return cacheMetricsError
}

func recordCacheHit() {
	if cacheHitCounter != nil {
		cacheHitCounter.Inc()
	}
}

func recordCacheMiss() {
	if cacheMissCounter != nil {
		cacheMissCounter.Inc()
	}
}

func observeAggregate(d time.Duration) {
	if aggregateHistogram != nil {
		aggregateHistogram.Observe(d.Seconds())
	}
}
