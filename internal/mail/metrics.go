// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package mail

import "github.com/prometheus/client_golang/prometheus"

// Dispatch status label values.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Dispatches counts notification deliveries by template and status.
var Dispatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "neighborly_mail_dispatch_total",
		Help: "Total account notification deliveries by template and status",
	},
	[]string{"template", "status"},
)

// RegisterMetrics registers mail metrics with the given registerer.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Dispatches)
}
