// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus metrics for chat exchanges and history
// persistence.
//
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "silochat"

// Metrics holds all Prometheus metrics for the chat client.
type Metrics struct {
	ExchangesTotal    *prometheus.CounterVec
	ExchangeDuration  *prometheus.HistogramVec
	ExchangesInFlight prometheus.Gauge

	FragmentsTotal  prometheus.Counter
	StreamBytes     prometheus.Counter
	StreamErrors    *prometheus.CounterVec
	TimeToFirstByte prometheus.Histogram

	PersistTotal    *prometheus.CounterVec
	PersistDuration prometheus.Histogram
}

// New creates all metrics and registers them on reg. A nil reg uses a fresh
// private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ExchangesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exchanges_total",
				Help:      "Completed prompt exchanges by outcome",
			},
			[]string{"outcome"},
		),
		ExchangeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "exchange_duration_seconds",
				Help:      "Wall time of prompt exchanges",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		ExchangesInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "exchanges_in_flight",
				Help:      "Exchanges currently sending or streaming",
			},
		),
		FragmentsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_fragments_total",
				Help:      "Stream records decoded",
			},
		),
		StreamBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_bytes_total",
				Help:      "Bytes read from completion streams",
			},
		),
		StreamErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_errors_total",
				Help:      "Exchange failures by error kind",
			},
			[]string{"kind"},
		),
		TimeToFirstByte: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "time_to_first_fragment_seconds",
				Help:      "Delay between sending a prompt and the first assistant fragment",
				Buckets:   prometheus.DefBuckets,
			},
		),
		PersistTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_writes_total",
				Help:      "History writes by status",
			},
			[]string{"status"},
		),
		PersistDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "history_write_duration_seconds",
				Help:      "Duration of history writes",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// =============================================================================
// RECORDING HELPERS
// =============================================================================

// ExchangeStarted marks an exchange in flight.
func (m *Metrics) ExchangeStarted() {
	if m == nil {
		return
	}
	m.ExchangesInFlight.Inc()
}

// ExchangeFinished records the outcome and duration of an exchange.
func (m *Metrics) ExchangeFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ExchangesInFlight.Dec()
	m.ExchangesTotal.WithLabelValues(outcome).Inc()
	m.ExchangeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// FirstFragment records time to the first assistant fragment.
func (m *Metrics) FirstFragment(d time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstByte.Observe(d.Seconds())
}

// StreamConsumed records decoder counters at the end of a stream.
func (m *Metrics) StreamConsumed(records int, bytes int64) {
	if m == nil {
		return
	}
	m.FragmentsTotal.Add(float64(records))
	m.StreamBytes.Add(float64(bytes))
}

// StreamError counts a failure of the given kind.
func (m *Metrics) StreamError(kind string) {
	if m == nil {
		return
	}
	m.StreamErrors.WithLabelValues(kind).Inc()
}

// Persisted records a history write.
func (m *Metrics) Persisted(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PersistTotal.WithLabelValues(status).Inc()
	m.PersistDuration.Observe(d.Seconds())
}
