// Package jobmetrics instruments asynq task handlers and task publishing.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	executions *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	published  *prometheus.CounterVec
}

// NewMetrics registers the job collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "job",
			Name:      "executions_total",
			Help:      "Task handler runs by task type and outcome.",
		}, []string{"job", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "job",
			Name:      "failures_total",
			Help:      "Task handler runs that returned an error.",
		}, []string{"job"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odyssey",
			Subsystem: "job",
			Name:      "run_seconds",
			Help:      "Task handler wall time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"job"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odyssey",
			Subsystem: "job",
			Name:      "published_total",
			Help:      "Tasks handed to redis by task type and outcome.",
		}, []string{"task", "outcome"}),
	}
	reg.MustRegister(m.executions, m.failures, m.latency, m.published)
	return m
}

// Tracker times one handler run.
type Tracker struct {
	m     *Metrics
	job   string
	began time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{m: m, job: job, began: time.Now()}
}

// End records the run and returns err unchanged, so handlers can
// `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil || t.job == "" {
		return err
	}
	t.m.latency.WithLabelValues(t.job).Observe(time.Since(t.began).Seconds())
	if err != nil {
		t.m.failures.WithLabelValues(t.job).Inc()
	}
	t.m.executions.WithLabelValues(t.job, outcome(err)).Inc()
	return err
}

// Enqueued counts one publish attempt for task.
func (m *Metrics) Enqueued(task string, err error) {
	if m != nil {
		m.published.WithLabelValues(task, outcome(err)).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}
