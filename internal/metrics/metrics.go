package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trackdeck"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful child starts per role.",
		}, []string{"role"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of stop requests delivered to a running child.",
		}, []string{"role"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of observed child exits by role and outcome (clean, error).",
		}, []string{"role", "outcome"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions between process states.",
		}, []string{"role", "from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "process",
			Name:      "current_state",
			Help:      "Current state of each role (1 = active state, 0 = inactive).",
		}, []string{"role", "state"},
	)

	logLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "lines_total",
			Help:      "Lines appended per log channel.",
		}, []string{"channel"},
	)
	persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "persist_failures_total",
			Help:      "Appends whose file write failed per log channel.",
		}, []string{"channel"},
	)

	subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "subscribers",
			Help:      "Currently connected live subscribers.",
		},
	)
	subscriberDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers disconnected because their send queue was full.",
		},
	)

	keepaliveProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keepalive",
			Name:      "probes_total",
			Help:      "Keepalive probes by result (ok, error).",
		}, []string{"result"},
	)
	remoteChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "checks_total",
			Help:      "Remote notifier health checks by result (ok, error, unconfigured).",
		}, []string{"result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		processStarts, processStops, processExits, stateTransitions, currentStates,
		logLines, persistFailures, subscribers, subscriberDrops, keepaliveProbes, remoteChecks,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(role string) {
	if regOK.Load() {
		processStarts.WithLabelValues(role).Inc()
	}
}

func IncStop(role string) {
	if regOK.Load() {
		processStops.WithLabelValues(role).Inc()
	}
}

func IncExit(role string, code int) {
	if regOK.Load() {
		outcome := "clean"
		if code != 0 {
			outcome = "error"
		}
		processExits.WithLabelValues(role, outcome).Inc()
	}
}

func RecordStateTransition(role, from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(role, from, to).Inc()
	}
}

func SetCurrentState(role, state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(role, state).Set(value)
	}
}

func AddLogLines(channel string, n int) {
	if regOK.Load() && n > 0 {
		logLines.WithLabelValues(channel).Add(float64(n))
	}
}

func IncPersistFailure(channel string) {
	if regOK.Load() {
		persistFailures.WithLabelValues(channel).Inc()
	}
}

func SubscriberConnected() {
	if regOK.Load() {
		subscribers.Inc()
	}
}

func SubscriberDisconnected() {
	if regOK.Load() {
		subscribers.Dec()
	}
}

func IncSubscriberDrop() {
	if regOK.Load() {
		subscriberDrops.Inc()
	}
}

func IncKeepaliveProbe(ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "error"
		}
		keepaliveProbes.WithLabelValues(result).Inc()
	}
}

func IncRemoteCheck(result string) {
	if regOK.Load() {
		remoteChecks.WithLabelValues(result).Inc()
	}
}
