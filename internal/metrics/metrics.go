package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BackendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_requests_total",
		Help: "Total number of backend API requests.",
	}, []string{"endpoint", "outcome"})

	BackendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Backend API request latencies in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	Notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rtc_notifications_total",
		Help: "Total number of realtime call notifications by reported state.",
	}, []string{"state"})

	CallsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calls_ended_total",
		Help: "Total number of calls cleared from the session, by reason.",
	}, []string{"reason"})

	ActiveCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_calls",
		Help: "Number of active calls tracked by the session (0 or 1).",
	})

	ConnectionReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rtc_connection_ready",
		Help: "1 when the realtime connection is ready, 0 otherwise.",
	})

	FaxRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fax_requests_total",
		Help: "Total number of fax workflow operations.",
	}, []string{"operation", "outcome"})
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		BackendRequests, BackendDuration,
		Notifications, CallsEnded, ActiveCalls, ConnectionReady,
		FaxRequests,
	)
}
