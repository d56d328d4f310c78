package metrics

import "time"

// RunResult describes one finished generation run.
type RunResult struct {
	RunID       string
	Source      string
	Outcome     string
	FailureKind string
	Candidates  int
	Scheduled   int
	Duration    time.Duration
	LoadMean    float64
	LoadStdDev  float64
	LoadMax     float64
	Time        time.Time
}

// MetricsSink records generation runs.
type MetricsSink interface {
	RecordRun(r RunResult) error
}

// ChangeEvent is one committed schedule change.
type ChangeEvent struct {
	Kind  string
	Count int
	Time  time.Time
}

// ChangeRecorder records schedule changes published on the event bus.
type ChangeRecorder interface {
	RecordScheduleChange(ev ChangeEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordRun(RunResult) error              { return nil }
func (NopSink) RecordScheduleChange(ChangeEvent) error { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordRun forwards the run to all sinks, returning the first error.
func (m *MultiSink) RecordRun(r RunResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(r); err != nil {
			return err
		}
	}
	return nil
}

// RecordScheduleChange forwards to the sinks that support it.
func (m *MultiSink) RecordScheduleChange(ev ChangeEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ChangeRecorder); ok {
			if err := rec.RecordScheduleChange(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
