// Package metrics exposes Prometheus collectors for the proving loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "premsel"

// Metrics groups the loop's collectors. A nil *Metrics is valid and records
// nothing, so components can be built without a registry in tests.
type Metrics struct {
	attempts       *prometheus.CounterVec
	attemptSeconds *prometheus.HistogramVec
	solvedAllTime  *prometheus.GaugeVec
	examples       *prometheus.GaugeVec
	bestAUC        *prometheus.GaugeVec
	gridTrials     *prometheus.CounterVec
	iteration      prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prover_attempts_total",
			Help:      "Prover invocations by split and outcome (solved, unsolved, failed).",
		}, []string{"split", "outcome"}),
		attemptSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prover_attempt_seconds",
			Help:      "Wall time of one prover invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"split"}),
		solvedAllTime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solved_problems_all_time",
			Help:      "Distinct problems solved in any iteration so far.",
		}, []string{"split"}),
		examples: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_examples",
			Help:      "Accumulated distinct training examples per pool.",
		}, []string{"pool"}),
		bestAUC: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grid_best_auc",
			Help:      "Held-out AUC of the selected grid point in the latest search.",
		}, []string{"pool"}),
		gridTrials: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grid_trials_total",
			Help:      "Grid points evaluated, by pool and outcome (ok, failed).",
		}, []string{"pool", "outcome"}),
		iteration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration",
			Help:      "Current loop iteration.",
		}),
	}
}

// ObserveAttempt records one prover invocation.
func (m *Metrics) ObserveAttempt(split, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(split, outcome).Inc()
	m.attemptSeconds.WithLabelValues(split).Observe(d.Seconds())
}

// SetSolvedAllTime sets the all-time solved count for split.
func (m *Metrics) SetSolvedAllTime(split string, n int) {
	if m == nil {
		return
	}
	m.solvedAllTime.WithLabelValues(split).Set(float64(n))
}

// SetExamples sets the accumulated example count for pool.
func (m *Metrics) SetExamples(pool string, n int) {
	if m == nil {
		return
	}
	m.examples.WithLabelValues(pool).Set(float64(n))
}

// ObserveGridTrial counts one evaluated grid point.
func (m *Metrics) ObserveGridTrial(pool string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.gridTrials.WithLabelValues(pool, outcome).Inc()
}

// SetBestAUC records the AUC of the selected grid point for pool.
func (m *Metrics) SetBestAUC(pool string, auc float64) {
	if m == nil {
		return
	}
	m.bestAUC.WithLabelValues(pool).Set(auc)
}

// SetIteration records the iteration the loop is in.
func (m *Metrics) SetIteration(i int) {
	if m == nil {
		return
	}
	m.iteration.Set(float64(i))
}
