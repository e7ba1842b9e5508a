// Package metrics provides a small helper around prometheus registration so
// that each component registers its collectors under a common namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "degen_party"

// CountBuckets is a shared histogram bucket set for small counts.
var CountBuckets = []float64{0, 1, 2, 3, 5, 8, 13, 21, 34, 55}

// ComponentRegistry registers collectors for one component, prefixing every
// metric with the process namespace and the component subsystem.
type ComponentRegistry struct {
	subsystem string
	reg       prometheus.Registerer
}

// NewComponentRegistry creates a registry for the named component. If reg is
// nil the default prometheus registerer is used.
func NewComponentRegistry(subsystem string, reg prometheus.Registerer) *ComponentRegistry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &ComponentRegistry{subsystem: subsystem, reg: reg}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounter(opts)
	r.register(c)
	return c
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	c := prometheus.NewCounterVec(opts, labels)
	r.register(c)
	return c
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	g := prometheus.NewGauge(opts)
	r.register(g)
	return g
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace = namespace
	opts.Subsystem = r.subsystem
	h := prometheus.NewHistogram(opts)
	r.register(h)
	return h
}

// register tolerates duplicate registration so components can be rebuilt in
// tests without a fresh registerer.
func (r *ComponentRegistry) register(c prometheus.Collector) {
	if err := r.reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return
		}
	}
}
