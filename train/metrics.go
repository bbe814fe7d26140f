package train

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fwdtrain/fwdtrain/train/admission"
)

// Metrics exposes step and admission counters for a training client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// steps counts candidate steps by outcome (completed, skipped, failed).
	steps *prometheus.CounterVec
	// denials counts admission denials by reason.
	denials *prometheus.CounterVec
	// updates tracks the distribution of clipped update scalars.
	updates prometheus.Histogram
	// loss is the most recent unperturbed loss.
	loss prometheus.Gauge
	// failures mirrors the policy's consecutive failure counter.
	failures prometheus.Gauge
	// nextAllowed mirrors the policy's backoff deadline in Unix seconds.
	nextAllowed prometheus.Gauge
	// cooldown is 1 while the policy is in Cooldown.
	cooldown prometheus.Gauge
}

// NewMetrics registers training metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fwdtrain",
			Subsystem: "step",
			Name:      "total",
			Help:      "Candidate training steps by outcome",
		}, []string{"outcome"}),
		denials: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fwdtrain",
			Subsystem: "admission",
			Name:      "denials_total",
			Help:      "Admission denials by reason",
		}, []string{"reason"}),
		updates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fwdtrain",
			Subsystem: "step",
			Name:      "update_scalar",
			Help:      "Distribution of clipped update scalars",
			Buckets:   []float64{-5, -2, -1, -0.5, -0.1, 0, 0.1, 0.5, 1, 2, 5},
		}),
		loss: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fwdtrain",
			Subsystem: "step",
			Name:      "loss",
			Help:      "Most recent unperturbed loss",
		}),
		failures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fwdtrain",
			Subsystem: "admission",
			Name:      "consecutive_failures",
			Help:      "Consecutive failed steps since the last success",
		}),
		nextAllowed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fwdtrain",
			Subsystem: "admission",
			Name:      "next_allowed_run_seconds",
			Help:      "Unix time before which no step may run",
		}),
		cooldown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fwdtrain",
			Subsystem: "admission",
			Name:      "cooldown",
			Help:      "1 while the thermal policy is cooling down",
		}),
	}
}

func (m *Metrics) observeStep(res StepResult) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(res.Outcome)).Inc()
	switch res.Outcome {
	case OutcomeSkipped:
		m.denials.WithLabelValues(res.Reason).Inc()
	case OutcomeCompleted:
		m.updates.Observe(float64(res.Update))
		m.loss.Set(float64(res.Loss))
	}
}

func (m *Metrics) observeAdmission(st admission.State) {
	if m == nil {
		return
	}
	m.failures.Set(float64(st.ConsecutiveFailures))
	m.nextAllowed.Set(float64(st.NextAllowedRunTime))
	if st.Mode == admission.Cooldown {
		m.cooldown.Set(1)
	} else {
		m.cooldown.Set(0)
	}
}
