package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/sita/sidang/core/metrics"
)

// PromSink records scheduling runs and schedule changes in Prometheus.
type PromSink struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	scheduled  prometheus.Gauge
	candidates prometheus.Gauge
	loadStdDev prometheus.Gauge
	loadMax    prometheus.Gauge
	changes    *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidang_runs_total",
			Help: "Total number of scheduling runs",
		}, []string{"source", "outcome", "failure_kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sidang_run_duration_seconds",
			Help:    "Wall time of scheduling runs",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		scheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sidang_last_run_scheduled",
			Help: "Exams placed by the last successful run",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sidang_last_run_candidates",
			Help: "Candidates considered by the last run",
		}),
		loadStdDev: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sidang_examiner_load_stddev",
			Help: "Standard deviation of drawn examiner seats after the last successful run",
		}),
		loadMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sidang_examiner_load_max",
			Help: "Highest drawn examiner seat count after the last successful run",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sidang_schedule_changes_total",
			Help: "Committed schedule changes by kind",
		}, []string{"kind"}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.scheduled, err = register(reg, s.scheduled); err != nil {
		return nil, err
	}
	if s.candidates, err = register(reg, s.candidates); err != nil {
		return nil, err
	}
	if s.loadStdDev, err = register(reg, s.loadStdDev); err != nil {
		return nil, err
	}
	if s.loadMax, err = register(reg, s.loadMax); err != nil {
		return nil, err
	}
	if s.changes, err = register(reg, s.changes); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordRun updates the run counters and, on success, the load gauges.
func (s *PromSink) RecordRun(r coremetrics.RunResult) error {
	s.runs.WithLabelValues(r.Source, r.Outcome, r.FailureKind).Inc()
	s.duration.WithLabelValues(r.Outcome).Observe(r.Duration.Seconds())
	s.candidates.Set(float64(r.Candidates))
	if r.Outcome == "success" {
		s.scheduled.Set(float64(r.Scheduled))
		s.loadStdDev.Set(r.LoadStdDev)
		s.loadMax.Set(r.LoadMax)
	}
	return nil
}

// RecordScheduleChange counts a committed change.
func (s *PromSink) RecordScheduleChange(ev coremetrics.ChangeEvent) error {
	s.changes.WithLabelValues(ev.Kind).Add(float64(max(ev.Count, 1)))
	return nil
}
