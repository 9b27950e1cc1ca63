package bridge

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	calls     *prometheus.CounterVec
	retries   prometheus.Counter
	inits     *prometheus.CounterVec
	durations prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instant_ai_bridge_calls_total",
				Help: "Processing calls by terminal outcome",
			},
			[]string{"outcome", "kind"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "instant_ai_bridge_retries_total",
			Help: "Retries scheduled after a backend reported it was not ready",
		}),
		inits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "instant_ai_bridge_initializations_total",
				Help: "Backend start attempts by result",
			},
			[]string{"result"},
		),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "instant_ai_bridge_call_duration_seconds",
			Help:    "Time from Process to terminal outcome, retries included",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	m.calls = register(reg, m.calls, &err)
	m.retries = register(reg, m.retries, &err)
	m.inits = register(reg, m.inits, &err)
	m.durations = register(reg, m.durations, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, reusing an identical collector already present in reg.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		if *errp == nil {
			*errp = err
		}
	}
	return c
}

func (m *metrics) observe(o Outcome, seconds float64) {
	if o.OK() {
		m.calls.WithLabelValues("success", "").Inc()
	} else {
		m.calls.WithLabelValues("failure", o.Failure.Kind.String()).Inc()
	}
	m.durations.Observe(seconds)
}
