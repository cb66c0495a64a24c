// Package metrics exposes the framework's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OffersReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exhibitor_mesos_offers_received_total",
		Help: "Total number of resource offers received from Mesos.",
	})
	OffersAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exhibitor_mesos_offers_accepted_total",
		Help: "Total number of resource offers that resulted in a task launch.",
	})
	OffersDeclined = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exhibitor_mesos_offers_declined_total",
		Help: "Total number of resource offers declined.",
	})
	TasksLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exhibitor_mesos_tasks_launched_total",
		Help: "Total number of tasks launched.",
	})
	StatusUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exhibitor_mesos_status_updates_total",
		Help: "Total number of task status updates received, by Mesos task state.",
	}, []string{"state"})
	ServersByState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "exhibitor_mesos_servers_by_state",
		Help: "Number of servers currently in each lifecycle state.",
	}, []string{"state"})
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exhibitor_mesos_api_requests_total",
		Help: "Total number of control-plane API requests, by path.",
	}, []string{"path"})
)

// Registry is the Prometheus registry the framework's HTTP mux exposes
// under /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		OffersReceived,
		OffersAccepted,
		OffersDeclined,
		TasksLaunched,
		StatusUpdates,
		ServersByState,
		APIRequests,
	)
}
