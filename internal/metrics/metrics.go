// Package metrics exposes rotator position and command outcomes to
// Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/w1xm/k3ng_interface/k3ng"
	"github.com/w1xm/k3ng_interface/rotator"
)

// Collector bundles the daemon's Prometheus metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Azimuth         prometheus.Gauge
	Elevation       prometheus.Gauge
	LastPoll        prometheus.Gauge
}

// New registers the metrics against reg, defaulting to the global registry
// when nil. Registering twice returns the existing collectors.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	commands, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "k3ng_commands_total",
		Help: "Rotator operations, labeled by operation and outcome.",
	}, []string{"op", "result"}), "k3ng_commands_total")
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "k3ng_command_duration_seconds",
		Help:    "Rotator operation latency in seconds, including device waits.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"}), "k3ng_command_duration_seconds")
	if err != nil {
		return nil, err
	}
	az, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "k3ng_azimuth_degrees",
		Help: "Last polled azimuth.",
	}), "k3ng_azimuth_degrees")
	if err != nil {
		return nil, err
	}
	el, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "k3ng_elevation_degrees",
		Help: "Last polled elevation.",
	}), "k3ng_elevation_degrees")
	if err != nil {
		return nil, err
	}
	last, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "k3ng_last_poll_timestamp_seconds",
		Help: "Unix time of the last successful poll.",
	}), "k3ng_last_poll_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Commands:        commands,
		CommandDuration: durations,
		Azimuth:         az,
		Elevation:       el,
		LastPoll:        last,
	}, nil
}

// Result is the outcome label for err: "ok", or the error kind in snake
// case such as "tle_corrupt".
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ReplaceAll(strings.ToLower(k3ng.KindOf(err).String()), " ", "_")
}

// Observe records one operation that started at start.
func (c *Collector) Observe(op string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.Commands.WithLabelValues(op, Result(err)).Inc()
	c.CommandDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetStatus records a successful poll.
func (c *Collector) SetStatus(s rotator.Status, when time.Time) {
	if c == nil {
		return
	}
	c.Azimuth.Set(s.AzimuthPosition())
	c.Elevation.Set(s.ElevationPosition())
	c.LastPoll.Set(float64(when.UnixNano()) / 1e9)
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
