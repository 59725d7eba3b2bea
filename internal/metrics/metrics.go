package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors for the supervisor. Registered via
// Register, served via Handler.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of successful service starts.",
		}, []string{"name"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of service exits observed (graceful or otherwise).",
		}, []string{"name"},
	)
	forcedKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "forced_kills_total",
			Help:      "Number of services that needed a forced kill after the grace period.",
		}, []string{"name"},
	)
	runningServices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stackup",
			Subsystem: "service",
			Name:      "running",
			Help:      "Current number of running managed services.",
		},
	)
	sweptProcesses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stackup",
			Subsystem: "cleanup",
			Name:      "swept_total",
			Help:      "Processes terminated by the startup pattern sweep or registry cleanup.",
		},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// already-registered collectors are kept.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serviceStarts, serviceStops, forcedKills, runningServices, sweptProcesses}
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

// Handler serves the default gatherer; the caller wires it into a server.
func Handler() http.Handler { return promhttp.Handler() }

func IncStart(name string) {
	serviceStarts.WithLabelValues(name).Inc()
	runningServices.Inc()
}

func IncStop(name string) {
	serviceStops.WithLabelValues(name).Inc()
	runningServices.Dec()
}

func IncForcedKill(name string) { forcedKills.WithLabelValues(name).Inc() }

func IncSwept() { sweptProcesses.Inc() }
