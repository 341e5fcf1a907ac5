package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cscplan"

// Collectors counts sampling and evaluation work. A nil *Collectors is valid
// and records nothing.
type Collectors struct {
	sampled      *prometheus.CounterVec
	sampleErrors *prometheus.CounterVec
	evaluated    *prometheus.CounterVec
	evalDuration *prometheus.HistogramVec
	storedRuns   prometheus.Counter
}

func New() *Collectors {
	return &Collectors{
		sampled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampled_individuals_total",
			Help:      "Individuals drawn by the feasible sampler.",
		}, []string{"problem"}),
		sampleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sampling_failures_total",
			Help:      "Population draws that ended in an error.",
		}, []string{"problem"}),
		evaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluated_individuals_total",
			Help:      "Individuals scored by the objective evaluator.",
		}, []string{"problem"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of one population evaluation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"problem"}),
		storedRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_runs_total",
			Help:      "Runs persisted to the run store.",
		}),
	}
}

func (c *Collectors) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{c.sampled, c.sampleErrors, c.evaluated, c.evalDuration, c.storedRuns} {
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collectors) Sampled(problem string, n int) {
	if c == nil {
		return
	}
	c.sampled.WithLabelValues(problem).Add(float64(n))
}

func (c *Collectors) SampleFailed(problem string) {
	if c == nil {
		return
	}
	c.sampleErrors.WithLabelValues(problem).Inc()
}

func (c *Collectors) Evaluated(problem string, n int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.evaluated.WithLabelValues(problem).Add(float64(n))
	c.evalDuration.WithLabelValues(problem).Observe(elapsed.Seconds())
}

func (c *Collectors) RunStored() {
	if c == nil {
		return
	}
	c.storedRuns.Inc()
}
