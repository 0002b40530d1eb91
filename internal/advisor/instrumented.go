package advisor

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumented wraps an Advisor with request and latency metrics.
type Instrumented struct {
	next     Advisor
	name     string
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func Instrument(next Advisor, name string, reg prometheus.Registerer) *Instrumented {
	i := &Instrumented{
		next: next,
		name: name,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ercc",
			Subsystem: "advisor",
			Name:      "requests_total",
			Help:      "Advisor calls by implementation and outcome.",
		}, []string{"advisor", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ercc",
			Subsystem: "advisor",
			Name:      "request_duration_seconds",
			Help:      "Advisor call latency.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 8, 16},
		}, []string{"advisor"}),
	}
	reg.MustRegister(i.requests, i.latency)
	return i
}

func (i *Instrumented) Recommend(ctx context.Context, req Request) (*Recommendation, error) {
	start := time.Now()
	rec, err := i.next.Recommend(ctx, req)
	i.latency.WithLabelValues(i.name).Observe(time.Since(start).Seconds())

	outcome := "no_shift"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "unavailable"
	case rec.ShouldShift:
		outcome = "shift"
	}
	i.requests.WithLabelValues(i.name, outcome).Inc()
	return rec, err
}
