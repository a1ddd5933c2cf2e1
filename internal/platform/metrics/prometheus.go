// Package metrics exposes Prometheus collectors for the HTTP layer and the
// risk and compliance engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odonto_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odonto_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	riskScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "odonto_risk_score",
			Help:    "Distribution of computed patient risk scores",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	alertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odonto_alerts_generated_total",
			Help: "Medical alerts generated, by type and priority",
		},
		[]string{"type", "priority"},
	)

	accessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odonto_access_decisions_total",
			Help: "Compliance gate decisions",
		},
		[]string{"role", "data_kind", "outcome"},
	)

	auditEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odonto_audit_entries_total",
			Help: "Audit entries appended",
		},
		[]string{"outcome"},
	)

	auditAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odonto_audit_anomalies_total",
			Help: "Audit entries flagged as anomalous",
		},
		[]string{"flag"},
	)

	auditPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "odonto_audit_entries_purged_total",
			Help: "Audit entries removed by the retention job",
		},
	)

	consentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odonto_consent_transitions_total",
			Help: "Consent lifecycle transitions",
		},
		[]string{"from", "to"},
	)
)

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latencies labelled by route
// template, not raw path, to keep cardinality bounded.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func RecordRiskScore(score int) {
	riskScores.Observe(float64(score))
}

func RecordAlert(alertType, priority string) {
	alertsGenerated.WithLabelValues(alertType, priority).Inc()
}

func RecordAccessDecision(role, dataKind string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	accessDecisions.WithLabelValues(role, dataKind, outcome).Inc()
}

func RecordAuditEntry(outcome string, flags []string) {
	auditEntries.WithLabelValues(outcome).Inc()
	for _, f := range flags {
		auditAnomalies.WithLabelValues(f).Inc()
	}
}

func RecordAuditPurge(n int) {
	auditPurged.Add(float64(n))
}

func RecordConsentTransition(from, to string) {
	consentTransitions.WithLabelValues(from, to).Inc()
}
