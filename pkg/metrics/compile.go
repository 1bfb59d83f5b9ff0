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
	// Compile pipeline metrics
	compileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topoc_compile_total",
		Help: "Total number of topology compilations",
	}, []string{"result"})

	compileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topoc_compile_duration_seconds",
		Help:    "Duration of topology compilations by stage",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"stage"})

	issuesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "topoc_validation_issues_total",
		Help: "Total number of validation issues reported",
	}, []string{"severity", "code"})

	objectsRendered = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "topoc_objects_rendered",
		Help: "Number of objects in the last rendered graph",
	}, []string{"topology", "layer"})
)

func init() {
	// Register compile metrics with controller-runtime's registry
	metrics.Registry.MustRegister(
		compileTotal,
		compileDuration,
		issuesTotal,
		objectsRendered,
	)
}

// RecordCompile records a finished compilation
// result: "success", "invalid" or "error"
func RecordCompile(result string) {
	compileTotal.WithLabelValues(result).Inc()
}

// RecordStage records the duration of one pipeline stage
// stage: "load", "merge", "validate" or "render"
func RecordStage(stage string, durationSeconds float64) {
	compileDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordIssue records a validation issue
func RecordIssue(severity, code string) {
	issuesTotal.WithLabelValues(severity, code).Inc()
}

// SetObjectsRendered sets the number of rendered objects in a layer
func SetObjectsRendered(topology, layer string, count int) {
	objectsRendered.WithLabelValues(topology, layer).Set(float64(count))
}
