// Package metrics expone los contadores Prometheus del servicio fiscal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authorizations cuenta solicitudes de CAE por resultado
	// (approved, rejected, global_rejection, error).
	Authorizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "corrafer",
		Subsystem: "fiscal",
		Name:      "authorizations_total",
		Help:      "Solicitudes de autorización de comprobantes por resultado.",
	}, []string{"outcome"})

	// TicketRefreshes cuenta renovaciones de ticket WSAA iniciadas.
	TicketRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corrafer",
		Subsystem: "fiscal",
		Name:      "ticket_refreshes_total",
		Help:      "Renovaciones de ticket WSAA iniciadas.",
	})

	// TicketRefreshFailures cuenta renovaciones de ticket fallidas.
	TicketRefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "corrafer",
		Subsystem: "fiscal",
		Name:      "ticket_refresh_failures_total",
		Help:      "Renovaciones de ticket WSAA fallidas sin ticket de respaldo.",
	})
)
