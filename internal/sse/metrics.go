// SPDX-License-Identifier: MIT

package sse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundloom",
			Name:      "sse_records_emitted_total",
			Help:      "Total SSE records written by event kind.",
		},
		[]string{"kind"},
	)

	heartbeatsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "soundloom",
			Name:      "sse_heartbeats_sent_total",
			Help:      "Total synthetic heartbeat records sent on idle streams.",
		},
	)

	streamsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "soundloom",
			Name:      "sse_streams_ended_total",
			Help:      "Total finished streams by end reason.",
		},
		[]string{"reason"},
	)

	streamDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "soundloom",
			Name:      "sse_stream_duration_seconds",
			Help:      "Wall-clock duration of finished streams.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
