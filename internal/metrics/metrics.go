package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	profileStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "givetray",
			Subsystem: "profile",
			Name:      "starts_total",
			Help:      "Number of successful command starts.",
		}, []string{"profile"},
	)
	profileStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "givetray",
			Subsystem: "profile",
			Name:      "stops_total",
			Help:      "Number of command stops, graceful or forced.",
		}, []string{"profile"},
	)
	profileKills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "givetray",
			Subsystem: "profile",
			Name:      "kills_total",
			Help:      "Number of stops that escalated to a forceful kill.",
		}, []string{"profile"},
	)
	spontaneousExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "givetray",
			Subsystem: "profile",
			Name:      "spontaneous_exits_total",
			Help:      "Number of times the command exited without a stop request.",
		}, []string{"profile"},
	)
	logLines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "givetray",
			Subsystem: "profile",
			Name:      "log_lines_total",
			Help:      "Captured output lines per profile and stream.",
		}, []string{"profile", "stream"},
	)
	running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "givetray",
			Subsystem: "profile",
			Name:      "running",
			Help:      "1 while the profile command is running.",
		}, []string{"profile"},
	)
)

// Register registers all collectors with r. Safe to call multiple times.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{profileStarts, profileStops, profileKills, spontaneousExits, logLines, running}
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

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(profile string) {
	if regOK.Load() {
		profileStarts.WithLabelValues(profile).Inc()
	}
}

func IncStop(profile string) {
	if regOK.Load() {
		profileStops.WithLabelValues(profile).Inc()
	}
}

func IncKill(profile string) {
	if regOK.Load() {
		profileKills.WithLabelValues(profile).Inc()
	}
}

func IncSpontaneousExit(profile string) {
	if regOK.Load() {
		spontaneousExits.WithLabelValues(profile).Inc()
	}
}

func IncLogLine(profile, stream string) {
	if regOK.Load() {
		logLines.WithLabelValues(profile, stream).Inc()
	}
}

func SetRunning(profile string, v bool) {
	if regOK.Load() {
		f := 0.0
		if v {
			f = 1.0
		}
		running.WithLabelValues(profile).Set(f)
	}
}
