// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "tabsession"

// =============================================================================
// METRICS
// =============================================================================

// Metrics holds the session manager's collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	transitions   *prometheus.CounterVec
	state         prometheus.Gauge
	redirects     *prometheus.CounterVec
	tokenOps      *prometheus.CounterVec
	crossTab      *prometheus.CounterVec
	fingerprints  *prometheus.CounterVec
	storageErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which tests use to read values directly.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_transitions_total",
			Help:      "Session state transitions by source and target state.",
		}, []string{"from", "to"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "state",
			Help:      "Current session state (0 unauthenticated, 1 active, 2 warning, 3 expired).",
		}),
		redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "login_redirects_total",
			Help:      "Redirects to the login surface by reason.",
		}, []string{"reason"}),
		tokenOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "token_operations_total",
			Help:      "Refresh and extend calls by outcome.",
		}, []string{"op", "outcome"}),
		crossTab: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crosstab_events_total",
			Help:      "Changes received from sibling tabs by key.",
		}, []string{"key"}),
		fingerprints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fingerprint_checks_total",
			Help:      "Device fingerprint checks by result.",
		}, []string{"result"}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "storage_errors_total",
			Help:      "Credential store operations that failed.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNewMetrics is NewMetrics that panics on registration errors.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transitions, m.state, m.redirects, m.tokenOps,
		m.crossTab, m.fingerprints, m.storageErrors,
	}
}

// =============================================================================
// RECORDING
// =============================================================================

// Transition records a state change. level is the numeric value of the new
// state for the gauge.
func (m *Metrics) Transition(from, to string, level int) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
	m.state.Set(float64(level))
}

// Redirect records a navigation to the login surface.
func (m *Metrics) Redirect(reason string) {
	if m == nil {
		return
	}
	m.redirects.WithLabelValues(reason).Inc()
}

// TokenOp records a refresh or extend outcome ("ok", "rejected", "network",
// "no_token").
func (m *Metrics) TokenOp(op, outcome string) {
	if m == nil {
		return
	}
	m.tokenOps.WithLabelValues(op, outcome).Inc()
}

// CrossTabEvent records a change received from a sibling tab.
func (m *Metrics) CrossTabEvent(key string) {
	if m == nil {
		return
	}
	m.crossTab.WithLabelValues(key).Inc()
}

// FingerprintCheck records a device check result.
func (m *Metrics) FingerprintCheck(result string) {
	if m == nil {
		return
	}
	m.fingerprints.WithLabelValues(result).Inc()
}

// StorageError records a failed credential store operation.
func (m *Metrics) StorageError() {
	if m == nil {
		return
	}
	m.storageErrors.Inc()
}
