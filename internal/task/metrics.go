package task

import "github.com/prometheus/client_golang/prometheus"

// Metrics are counters shared by every executor registered against them.
// Each counter is labelled with the executor's name. A nil *Metrics is a no-op.
type Metrics struct {
	Submitted *prometheus.CounterVec
	Executed  *prometheus.CounterVec
	Shared    *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Retried   *prometheus.CounterVec
}

// NewMetrics creates the executor counters and registers them with reg.
// reg may be nil for unregistered counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pvacvector",
			Subsystem: "task",
			Name:      name,
			Help:      help,
		}, []string{"executor"})
	}

	m := &Metrics{
		Submitted: counter("submitted_total", "Calls to Submit."),
		Executed:  counter("executed_total", "Attempts at running work, retries included."),
		Shared:    counter("shared_total", "Submits served by another caller's execution or the cache."),
		Failed:    counter("failed_total", "Executions whose error was delivered to waiters."),
		Retried:   counter("retried_total", "Failed attempts that were re-run."),
	}

	if reg != nil {
		reg.MustRegister(m.Submitted, m.Executed, m.Shared, m.Failed, m.Retried)
	}

	return m
}

func (m *Metrics) submitted(name string) {
	if m != nil {
		m.Submitted.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) executed(name string) {
	if m != nil {
		m.Executed.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) shared(name string) {
	if m != nil {
		m.Shared.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) failed(name string) {
	if m != nil {
		m.Failed.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) retried(name string) {
	if m != nil {
		m.Retried.WithLabelValues(name).Inc()
	}
}
