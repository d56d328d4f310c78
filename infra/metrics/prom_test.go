package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sita/sidang/core/events"
	coremetrics "github.com/sita/sidang/core/metrics"
	"github.com/sita/sidang/internal/eventbus"
)

func TestPromSink_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordRun(coremetrics.RunResult{Source: "manual", Outcome: "success", Candidates: 4, Scheduled: 4, LoadStdDev: 0.5, LoadMax: 2}))
	require.NoError(t, sink.RecordRun(coremetrics.RunResult{Source: "trigger", Outcome: "failure", FailureKind: "InsufficientExaminerCapacity", Candidates: 10}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("manual", "success", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("trigger", "failure", "InsufficientExaminerCapacity")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.scheduled), "failed runs keep the last successful count")
	assert.Equal(t, 10.0, testutil.ToFloat64(sink.candidates))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.loadMax))
}

func TestPromSink_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, a.RecordScheduleChange(coremetrics.ChangeEvent{Kind: "edited", Count: 1}))
	require.NoError(t, b.RecordScheduleChange(coremetrics.ChangeEvent{Kind: "edited"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.changes.WithLabelValues("edited")))
}

func TestEventCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	bus := eventbus.New[events.ScheduleEvent](0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink, nil)

	bus.Publish(events.ScheduleEvent{Kind: events.Moved, Count: 3, Time: time.Now()})
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(sink.changes.WithLabelValues("moved")) == 3
	}, time.Second, 10*time.Millisecond)
	bus.Close()
}

type failingRecorder struct{ coremetrics.NopSink }

func (failingRecorder) RecordScheduleChange(coremetrics.ChangeEvent) error {
	return errors.New("write refused")
}

type errorLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *errorLog) Debugf(string, ...any)         {}
func (l *errorLog) Debugw(string, map[string]any) {}
func (l *errorLog) Infof(string, ...any)          {}
func (l *errorLog) Warnf(string, ...any)          {}
func (l *errorLog) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *errorLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func TestEventCollectorLogsSinkErrors(t *testing.T) {
	bus := eventbus.New[events.ScheduleEvent](0)
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := &errorLog{}
	StartEventCollector(ctx, bus, failingRecorder{}, log)

	bus.Publish(events.ScheduleEvent{Kind: events.Swapped, Count: 2, Time: time.Now()})
	require.Eventually(t, func() bool { return len(log.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, log.snapshot()[0], "swapped")
	assert.Contains(t, log.snapshot()[0], "write refused")
}
