package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector exposes metrics of the ephemeris tick loop.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	TickDuration  prometheus.Histogram
	Ticks         prometheus.Counter
	Propagations  prometheus.Counter
	PublishErrors *prometheus.CounterVec
}

// NewEngineCollector registers tick loop metrics against the provided registerer.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tickHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orrery_tick_duration_seconds",
		Help:    "Time spent computing and publishing the ephemeris of all systems for one tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
	tickHistogram, err := registerHistogram(reg, tickHistogram, "orrery_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_ticks_total",
		Help: "Cumulative number of simulation ticks processed.",
	}), "orrery_ticks_total")
	if err != nil {
		return nil, err
	}

	propagations, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orrery_propagations_total",
		Help: "Cumulative number of node positions propagated.",
	}), "orrery_propagations_total")
	if err != nil {
		return nil, err
	}

	publishErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orrery_publish_errors_total",
		Help: "Ephemeris snapshots that could not be delivered, labeled by sink.",
	}, []string{"sink"})
	publishErrors, err = registerCounterVec(reg, publishErrors, "orrery_publish_errors_total")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:      gatherer,
		TickDuration:  tickHistogram,
		Ticks:         ticks,
		Propagations:  propagations,
		PublishErrors: publishErrors,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveTick records one tick that propagated the given number of nodes.
func (c *EngineCollector) ObserveTick(d time.Duration, propagated int) {
	if c == nil {
		return
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(d.Seconds())
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.Propagations != nil {
		c.Propagations.Add(float64(propagated))
	}
}

// IncPublishError counts a failed delivery to sink.
func (c *EngineCollector) IncPublishError(sink string) {
	if c == nil || c.PublishErrors == nil {
		return
	}
	c.PublishErrors.WithLabelValues(sink).Inc()
}
