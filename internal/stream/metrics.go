// SPDX-License-Identifier: MIT

package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "soundloom",
			Name:      "requests_active",
			Help:      "Number of live streaming requests in the registry.",
		},
	)

	requestCreatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundloom",
			Name:      "request_creates_total",
			Help:      "Total request creation attempts by result.",
		},
		[]string{"result"},
	)

	requestEndTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundloom",
			Name:      "request_end_total",
			Help:      "Total disposed requests by final status.",
		},
		[]string{"status"},
	)

	sweepExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soundloom",
			Name:      "sweep_expired_total",
			Help:      "Total requests expired by the TTL sweeper.",
		},
	)

	eventsPushedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundloom",
			Name:      "events_pushed_total",
			Help:      "Total events pushed into request channels by kind.",
		},
		[]string{"kind"},
	)
)
