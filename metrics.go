// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clnrpc

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "clnrpc"

// Call outcomes recorded in the calls_total counter.
const (
	outcomeOK       = "ok"
	outcomeRPCError = "rpc_error"
	outcomeError    = "error"
)

type metrics struct {
	calls       *prometheus.CounterVec
	disconnects *prometheus.CounterVec
	reconnects  prometheus.Counter
	dropped     prometheus.Counter
	pending     prometheus.Gauge
	state       prometheus.Gauge
	readiness   *prometheus.GaugeVec
	backoff     prometheus.Gauge
}

// newMetrics builds the client collectors and registers them with reg when
// reg is non-nil.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "calls_total",
			Help:      "Completed calls by method and outcome.",
		}, []string{"method", "outcome"}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "disconnects_total",
			Help:      "Connection losses by reason.",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "responses_dropped_total",
			Help:      "Values received with no matching pending call.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_calls",
			Help:      "Calls awaiting a response.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 connected, 3 closed.",
		}),
		readiness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connectivity",
			Help:      "1 for the current gRPC-style connectivity state, 0 otherwise.",
		}, []string{"state"}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "backoff_seconds",
			Help:      "Delay of the most recently scheduled reconnect.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.calls, m.disconnects, m.reconnects, m.dropped, m.pending, m.state, m.readiness, m.backoff,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeCall(method string, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
		if _, ok := IsRPCError(err); ok {
			outcome = outcomeRPCError
		}
	}
	m.calls.WithLabelValues(method, outcome).Inc()
}

// observeState records a transition in the state gauge and the connectivity
// series used by health checks.
func (m *metrics) observeState(from, to State) {
	m.state.Set(float64(to))
	m.readiness.WithLabelValues(from.Connectivity().String()).Set(0)
	m.readiness.WithLabelValues(to.Connectivity().String()).Set(1)
}
