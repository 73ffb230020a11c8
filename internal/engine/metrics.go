package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var (
	tracer = otel.Tracer("edgeid.engine")

	// eventsTotal counts handled events by route and outcome.
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeid_events_total",
		Help: "Total events handled by route and result",
	}, []string{"route", "result"})

	// bootAttempts counts boot attempts by result ("booted" or "deferred").
	bootAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeid_boot_attempts_total",
		Help: "Total identity boot attempts by result",
	}, []string{"result"})

	// publishesTotal counts XDM shared state publications.
	publishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeid_shared_state_publishes_total",
		Help: "Total identity XDM shared state publications by result",
	}, []string{"result"})

	// consentSignals counts ad ID consent events by value.
	consentSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "edgeid_consent_signals_total",
		Help: "Total ad ID consent update events dispatched by value",
	}, []string{"val"})

	// queueDepth reports events waiting in the engine queue.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "edgeid_queue_depth",
		Help: "Events waiting in the engine queue",
	})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
