package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lifeguard/internal/events"
	"lifeguard/internal/remediation"
)

var (
	ContainerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lifeguard_container_state",
		Help: "1 if the container is in the given lifecycle state",
	}, []string{"state"})

	LifecycleEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeguard_lifecycle_events_total",
		Help: "Lifecycle events recorded, by event kind",
	}, []string{"event"})

	HealthChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeguard_health_checks_total",
		Help: "Health check results of the monitoring loop",
	}, []string{"result"})

	RemediationActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeguard_remediation_actions_total",
		Help: "Remediation actions run, by action and result",
	}, []string{"action", "result"})

	StartupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifeguard_startup_duration_seconds",
		Help:    "Duration of successful startups",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		ContainerState,
		LifecycleEventsTotal,
		HealthChecksTotal,
		RemediationActionsTotal,
		StartupDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetState marks current as the active state among all states.
func SetState(current string, all []string) {
	for _, s := range all {
		v := float64(0)
		if s == current {
			v = 1
		}
		ContainerState.WithLabelValues(s).Set(v)
	}
}

// RegisterEventHandler wires metric updates to the event emitter.
func RegisterEventHandler(emitter *events.Emitter) {
	emitter.OnEvent(func(rec events.Record) {
		LifecycleEventsTotal.WithLabelValues(string(rec.Kind)).Inc()

		switch rec.Kind {
		case events.HealthCheckPassed:
			HealthChecksTotal.WithLabelValues("pass").Inc()
		case events.HealthCheckFailed:
			HealthChecksTotal.WithLabelValues("fail").Inc()
		case events.StartupCompleted:
			if rec.DurationMs != nil {
				StartupDuration.Observe(float64(*rec.DurationMs) / 1000)
			}
		case events.RecoveryCompleted:
			actions, _ := rec.Details["actions"].([]remediation.ActionResult)
			for _, a := range actions {
				result := "ok"
				if !a.OK() {
					result = "error"
				}
				RemediationActionsTotal.WithLabelValues(string(a.Action), result).Inc()
			}
		}
	})
}
