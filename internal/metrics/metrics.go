/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package metrics exposes Prometheus collectors for the card editor: scene
// commits, persistence writes, coalesced writes, gestures and exports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry so tests and multiple editors in one
// process never collide on registration.
type Collector struct {
	registry *prometheus.Registry

	commits   *prometheus.CounterVec
	writes    *prometheus.CounterVec
	writeTime *prometheus.HistogramVec
	coalesced *prometheus.CounterVec
	gestures  *prometheus.CounterVec
	exports   *prometheus.CounterVec
	elements  *prometheus.GaugeVec
}

// NewCollector creates the collectors under namespace (default "cardcanvas").
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "cardcanvas"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scene",
			Name:      "commits_total",
			Help:      "Committed scene mutations per face",
		},
		[]string{"face"},
	)
	c.elements = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scene",
			Name:      "elements",
			Help:      "Elements on the face after the last commit",
		},
		[]string{"face"},
	)
	c.writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "writes_total",
			Help:      "Key-value writes by key and result",
		},
		[]string{"key", "result"},
	)
	c.writeTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "write_duration_seconds",
			Help:      "Time taken by one key-value write",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"key"},
	)
	c.coalesced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persist",
			Name:      "coalesced_total",
			Help:      "Queued states replaced by a newer state before being written",
		},
		[]string{"key"},
	)
	c.gestures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gesture",
			Name:      "completed_total",
			Help:      "Finished gestures by mode and outcome",
		},
		[]string{"mode", "result"},
	)
	c.exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "rasters_total",
			Help:      "Face raster exports by result",
		},
		[]string{"face", "result"},
	)

	c.registry.MustRegister(c.commits, c.elements, c.writes, c.writeTime, c.coalesced, c.gestures, c.exports)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordCommit counts a commit and records the resulting element count.
func (c *Collector) RecordCommit(face string, elements int) {
	c.commits.WithLabelValues(face).Inc()
	c.elements.WithLabelValues(face).Set(float64(elements))
}

// RecordWrite records one persistence write.
func (c *Collector) RecordWrite(key string, d time.Duration, err error) {
	c.writes.WithLabelValues(key, result(err)).Inc()
	c.writeTime.WithLabelValues(key).Observe(d.Seconds())
}

// RecordCoalesce counts a queued state superseded before it was written.
func (c *Collector) RecordCoalesce(key string) { c.coalesced.WithLabelValues(key).Inc() }

// RecordGesture counts a finished gesture.
func (c *Collector) RecordGesture(mode string, committed bool) {
	r := "aborted"
	if committed {
		r = "committed"
	}
	c.gestures.WithLabelValues(mode, r).Inc()
}

// RecordExport counts a raster export.
func (c *Collector) RecordExport(face string, err error) {
	c.exports.WithLabelValues(face, result(err)).Inc()
}
