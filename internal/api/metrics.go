// SPDX-License-Identifier: MIT

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "soundloom",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method and status code.",
	},
	[]string{"method", "status"},
)
