// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package observability exposes Prometheus metrics of location acquisitions.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wneessen/mylocations/internal/locate"
)

const namespace = "mylocations"

var _ locate.Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus counters and gauges of the acquisition coordinator and
// the record store.
type Metrics struct {
	SessionsStarted  prometheus.Counter
	SessionsFinished *prometheus.CounterVec // labels: reason
	SessionActive    prometheus.Gauge
	Readings         *prometheus.CounterVec // labels: verdict={accepted,stale,invalid,ignored}
	GeocodeRequests  *prometheus.CounterVec // labels: outcome={found,empty,error,stale}
	RecordsSaved     *prometheus.CounterVec // labels: result={success,error}
}

// NewMetrics creates the metrics and registers them with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total location acquisitions started.",
		}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Location acquisitions finished by stop reason.",
		}, []string{"reason"}),
		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a location acquisition is running, 0 otherwise.",
		}),
		Readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Position readings processed by verdict.",
		}, []string{"verdict"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by outcome.",
		}, []string{"outcome"}),
		RecordsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_saved_total",
			Help:      "Tagged locations saved by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.SessionsStarted,
			m.SessionsFinished,
			m.SessionActive,
			m.Readings,
			m.GeocodeRequests,
			m.RecordsSaved,
		)
	}
	return m
}

func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

func (m *Metrics) SessionFinished(reason locate.StopReason) {
	m.SessionsFinished.WithLabelValues(reason.String()).Inc()
	m.SessionActive.Set(0)
}

func (m *Metrics) ReadingProcessed(verdict locate.Verdict) {
	m.Readings.WithLabelValues(string(verdict)).Inc()
}

func (m *Metrics) GeocodeCompleted(outcome locate.GeocodeOutcome) {
	m.GeocodeRequests.WithLabelValues(string(outcome)).Inc()
}

// RecordSaved counts a save attempt of a tagged location.
func (m *Metrics) RecordSaved(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.RecordsSaved.WithLabelValues(result).Inc()
}
