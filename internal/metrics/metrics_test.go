// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	return 0
}

func TestMetrics_RecordExchange(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ExchangeStarted()
	assert.Equal(t, 1.0, value(t, m.ExchangesInFlight))

	m.ExchangeFinished("success", 2*time.Second)
	assert.Equal(t, 0.0, value(t, m.ExchangesInFlight))
	assert.Equal(t, 1.0, value(t, m.ExchangesTotal.WithLabelValues("success")))

	m.StreamConsumed(3, 120)
	assert.Equal(t, 3.0, value(t, m.FragmentsTotal))
	assert.Equal(t, 120.0, value(t, m.StreamBytes))

	m.Persisted("error", time.Millisecond)
	assert.Equal(t, 1.0, value(t, m.PersistTotal.WithLabelValues("error")))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ExchangeStarted()
		m.ExchangeFinished("aborted", time.Second)
		m.FirstFragment(time.Second)
		m.StreamConsumed(1, 1)
		m.StreamError("transport")
		m.Persisted("ok", time.Second)
	})
}
