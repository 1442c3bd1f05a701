// Package metrics registers the Prometheus instruments for the controller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	VerificationsStarted    prometheus.Counter
	VerificationsPassed     prometheus.Counter
	VerificationsTimedOut   prometheus.Counter
	VerificationsSuperseded prometheus.Counter
	VerificationDuration    prometheus.Histogram
	ModerationActions       *prometheus.CounterVec
	Commands                *prometheus.CounterVec
	RoleCacheHits           prometheus.Counter
	RoleCacheMisses         prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer. Tests use this
// with a fresh registry to avoid duplicate registration.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_verifications_started_total",
			Help: "Join challenges issued",
		}),
		VerificationsPassed: factory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_verifications_passed_total",
			Help: "Verifications resolved by a qualifying response or forced pass",
		}),
		VerificationsTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_verifications_timed_out_total",
			Help: "Verifications resolved by timeout or forced fail",
		}),
		VerificationsSuperseded: factory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_verifications_superseded_total",
			Help: "Challenges replaced by a newer join for the same user",
		}),
		VerificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "doorman_verification_duration_seconds",
			Help:    "Time from challenge to resolution",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		ModerationActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "doorman_moderation_actions_total",
			Help: "Moderation actions applied, by action",
		}, []string{"action"}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "doorman_commands_total",
			Help: "Admin commands handled, by command",
		}, []string{"command"}),
		RoleCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_role_cache_hits_total",
			Help: "Role resolutions served from the cache",
		}),
		RoleCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "doorman_role_cache_misses_total",
			Help: "Role resolutions requiring a live membership query",
		}),
	}
}
