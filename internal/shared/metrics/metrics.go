package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_jobs_total",
			Help: "Background document jobs by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "document_job_duration_seconds",
			Help:    "Background document job duration including the configured delay.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "document_status_transitions_total",
			Help: "Document status transitions.",
		},
		[]string{"from", "to"},
	)

	queueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_queue_messages_total",
			Help: "Queue messages handled by the worker by outcome.",
		},
		[]string{"outcome"},
	)

	mailFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mail_send_failures_total",
		Help: "Emails that could not be delivered.",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		jobsTotal,
		jobDuration,
		transitionsTotal,
		queueMessagesTotal,
		mailFailuresTotal,
	)
}

// Job outcomes.
const (
	OutcomeStarted   = "started"
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// IncJob counts a background job outcome.
func IncJob(kind, outcome string) {
	jobsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveJobDuration records how long a job took.
func ObserveJobDuration(kind string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncTransition counts a status transition.
func IncTransition(from, to string) {
	transitionsTotal.WithLabelValues(from, to).Inc()
}

// Worker queue message outcomes.
const (
	QueueReceived      = "received"
	QueueCompleted     = "completed"
	QueueFailed        = "failed"
	QueueUnrecoverable = "unrecoverable"
)

// IncQueueMessage counts a worker queue message outcome.
func IncQueueMessage(outcome string) {
	queueMessagesTotal.WithLabelValues(outcome).Inc()
}

// IncMailFailure counts a swallowed mail delivery failure.
func IncMailFailure() {
	mailFailuresTotal.Inc()
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
