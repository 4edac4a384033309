package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch results.
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultQueued = "queued"
)

var (
	ChangesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panelwatch_changes_recorded_total",
		Help: "Panel changes appended to the ledger, by change type",
	}, []string{"change_type"})

	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panelwatch_notifications_created_total",
		Help: "View notifications created, by impact level",
	}, []string{"impact"})

	NotificationsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panelwatch_notifications_deduplicated_total",
		Help: "Notifications skipped because one already existed for the view and change",
	})

	NotificationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panelwatch_notification_conflicts_total",
		Help: "Unique violations hit while creating notifications",
	})

	Dispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panelwatch_dispatch_total",
		Help: "Change dispatch attempts, by mode and result",
	}, []string{"mode", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panelwatch_http_requests_total",
		Help: "HTTP requests, by method, route and status code",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "panelwatch_http_request_duration_seconds",
		Help:    "HTTP request latency, by method and route",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})
)
