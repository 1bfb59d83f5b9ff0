/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// Document cache metrics
	cacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topoc_source_cache_hits_total",
		Help: "Total number of document cache hits",
	}, []string{"cache"})

	cacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topoc_source_cache_misses_total",
		Help: "Total number of document cache misses",
	}, []string{"cache"})

	cacheEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "topoc_source_cache_evictions_total",
		Help: "Total number of disk cache evictions",
	})

	cacheEntriesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topoc_source_cache_entries",
		Help: "Current number of entries in the disk cache",
	})

	cacheSizeBytesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "topoc_source_cache_size_bytes",
		Help: "Current size of the disk cache in bytes",
	})

	// Fetch metrics
	fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topoc_source_fetch_duration_seconds",
		Help:    "Duration of document fetch operations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	}, []string{"type", "status"})
)

func init() {
	metrics.Registry.MustRegister(
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheEntriesGauge,
		cacheSizeBytesGauge,
		fetchDuration,
	)
}

// RecordCacheHit records a cache hit
// cache: "memory" or "disk"
func RecordCacheHit(cache string) {
	cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cache string) {
	cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordCacheEviction records a disk cache eviction
func RecordCacheEviction() {
	cacheEvictionsTotal.Inc()
}

// UpdateCacheStats updates the disk cache gauges
func UpdateCacheStats(entries int, sizeBytes int64) {
	cacheEntriesGauge.Set(float64(entries))
	cacheSizeBytesGauge.Set(float64(sizeBytes))
}

// RecordFetch records a fetch operation
func RecordFetch(fetcherType, status string, durationSeconds float64) {
	fetchDuration.WithLabelValues(fetcherType, status).Observe(durationSeconds)
}
