package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Security core metrics
var (
	// Login pipeline
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_login_attempts_total",
			Help: "Login attempts by terminal outcome",
		},
		[]string{"outcome"}, // success, rate_limited, invalid_credentials, disabled, two_factor_required, two_factor_failed, error
	)

	SuspiciousLogins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_suspicious_logins_total",
			Help: "Successful logins flagged by the anomaly check",
		},
	)

	// Rate limiting
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_rate_limit_decisions_total",
			Help: "Admission decisions by action",
		},
		[]string{"action", "decision"}, // decision: allowed/denied
	)

	RateLimitFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_rate_limit_fallbacks_total",
			Help: "Calls served by the in-process store because the durable store failed",
		},
		[]string{"op"},
	)

	// Revocation
	RevocationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_revocation_checks_total",
			Help: "Revocation lookups by result",
		},
		[]string{"result"}, // revoked, valid, error
	)

	RevokedTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authcore_revoked_tokens",
			Help: "Revoked-token records awaiting expiry",
		},
	)

	// Audit
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_audit_events_total",
			Help: "Audit events by pipeline stage",
		},
		[]string{"result"}, // written, dropped, failed
	)

	AuditPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_audit_events_purged_total",
			Help: "Audit events removed by retention",
		},
	)

	// Notifications
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_notifications_total",
			Help: "Outbound notifications by kind and result",
		},
		[]string{"kind", "result"}, // result: sent, dropped, failed
	)

	// Work queues
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "authcore_queue_depth",
			Help: "Buffered items per background queue",
		},
		[]string{"queue"},
	)

	// Scheduled jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_job_runs_total",
			Help: "Scheduled job executions",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_job_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"job"},
	)
)

// Handler exposes the default registry on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
