// Package metrics exposes Prometheus counters for request lifecycle events
// and HTTP traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/secops-portal/backend/internal/models"
)

// Recorder implements service.Recorder and the HTTP middleware hooks.
type Recorder struct {
	transitionsTotal *prometheus.CounterVec
	claimConflicts   prometheus.Counter
	autoReturned     prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// NewRecorder registers the collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		transitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secops_request_transitions_total",
				Help: "Total number of request status transitions by target status",
			},
			[]string{"status"},
		),
		claimConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "secops_claim_conflicts_total",
			Help: "Total number of claims lost to another agent",
		}),
		autoReturned: f.NewCounter(prometheus.CounterOpts{
			Name: "secops_auto_returned_total",
			Help: "Total number of stale claims returned to the queue",
		}),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secops_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secops_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

func (r *Recorder) ObserveTransition(to models.Status) {
	r.transitionsTotal.WithLabelValues(string(to)).Inc()
}

func (r *Recorder) ObserveClaimConflict() {
	r.claimConflicts.Inc()
}

func (r *Recorder) ObserveAutoReturn(n int) {
	r.autoReturned.Add(float64(n))
}

func (r *Recorder) ObserveHTTP(route, method, status string, d time.Duration) {
	r.httpRequests.WithLabelValues(route, method, status).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
