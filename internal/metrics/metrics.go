package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Known server states, used to zero the other values of the current state gauge.
var States = []string{"stopped", "starting", "started", "stopping"}

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "state_transitions_total",
			Help:      "Number of state transitions of the managed server.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "current_state",
			Help:      "Current state of the managed server (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "probes_total",
			Help:      "Probes sent to the managed server by kind and result.",
		}, []string{"kind", "result"},
	)
	playersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "players_online",
			Help:      "Players online according to the last status.",
		},
	)
	playersMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "players_max",
			Help:      "Player slots according to the last status.",
		},
	)
	wakes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "wakes_total",
			Help:      "Number of times the server was woken.",
		},
	)
	forceKills = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "force_kills_total",
			Help:      "Number of force kills issued against the server.",
		},
	)
	signalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "signal_failures_total",
			Help:      "Signals that could be delivered neither to the process group nor to the process.",
		}, []string{"signal"},
	)
	processCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the managed server process.",
		},
	)
	processRSS = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dozer",
			Subsystem: "server",
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the managed server process.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{stateTransitions, currentState, probes, playersOnline, playersMax, wakes, forceKills, signalFailures, processCPU, processRSS}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// Serve exposes Handler on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

// SetCurrentState marks state as active and every other known state inactive.
func SetCurrentState(state string) {
	if !regOK.Load() {
		return
	}
	for _, s := range States {
		var value float64
		if s == state {
			value = 1
		}
		currentState.WithLabelValues(s).Set(value)
	}
}

// RecordProbe counts a probe of kind ("status", "ping", "rcon") with result
// ("ok" or "error").
func RecordProbe(kind string, ok bool) {
	if !regOK.Load() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	probes.WithLabelValues(kind, result).Inc()
}

func SetPlayers(online, max int) {
	if regOK.Load() {
		playersOnline.Set(float64(online))
		playersMax.Set(float64(max))
	}
}

func IncWake() {
	if regOK.Load() {
		wakes.Inc()
	}
}

func IncForceKill() {
	if regOK.Load() {
		forceKills.Inc()
	}
}

func IncSignalFailure(signal string) {
	if regOK.Load() {
		signalFailures.WithLabelValues(signal).Inc()
	}
}
