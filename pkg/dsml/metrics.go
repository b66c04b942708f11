// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-dsml.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsml

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsCollector is the §3.4 SPEC_FULL.md Prometheus sideband: four
// counters registered against a caller-supplied registry. A nil registry
// (the default) yields a no-op collector, so New never opens an HTTP
// endpoint itself — spec.md §1 scopes metrics as "referenced only through
// the interfaces the core exposes."
type metricsCollector struct {
	publishes      prometheus.Counter
	interests      prometheus.Counter
	updateRequests prometheus.Counter
	socketsPruned  prometheus.Counter
}

func newMetricsCollector(reg prometheus.Registerer, self string) *metricsCollector {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"self": self}
	return &metricsCollector{
		publishes: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dsml_publishes_sent_total",
			Help:        "Number of publish frames successfully written to subscribers.",
			ConstLabels: labels,
		}),
		interests: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dsml_interests_received_total",
			Help:        "Number of interest frames received from clients.",
			ConstLabels: labels,
		}),
		updateRequests: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dsml_update_requests_received_total",
			Help:        "Number of update-request frames received and applied by this owner.",
			ConstLabels: labels,
		}),
		socketsPruned: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dsml_subscriber_sockets_pruned_total",
			Help:        "Number of subscriber sockets removed after a failed publish write.",
			ConstLabels: labels,
		}),
	}
}

// metricsHandle always returns a non-nil, safe-to-call-methods-on handle,
// whether or not metrics are enabled, so call sites never branch on it.
func (s *State) metricsHandle() metricsHandle {
	if s.metrics == nil {
		return noopMetrics{}
	}
	return s.metrics
}

type metricsHandle interface {
	publishSent()
	interestReceived()
	updateRequestReceived()
	socketPruned()
}

func (m *metricsCollector) publishSent()          { m.publishes.Inc() }
func (m *metricsCollector) interestReceived()     { m.interests.Inc() }
func (m *metricsCollector) updateRequestReceived() { m.updateRequests.Inc() }
func (m *metricsCollector) socketPruned()         { m.socketsPruned.Inc() }

type noopMetrics struct{}

func (noopMetrics) publishSent()          {}
func (noopMetrics) interestReceived()      {}
func (noopMetrics) updateRequestReceived() {}
func (noopMetrics) socketPruned()          {}
