package metrics

import (
	"context"

	"github.com/sita/sidang/core/events"
	"github.com/sita/sidang/core/logger"
	coremetrics "github.com/sita/sidang/core/metrics"
	"github.com/sita/sidang/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records schedule
// changes on sinks that support them. It stops when the context is
// canceled or the bus is closed. Sink errors are logged to log.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.ScheduleEvent], sink coremetrics.MetricsSink, log logger.Logger) {
	if bus == nil || sink == nil {
		return
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	rec, ok := sink.(coremetrics.ChangeRecorder)
	if !ok {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := rec.RecordScheduleChange(coremetrics.ChangeEvent{
					Kind:  string(ev.Kind),
					Count: ev.Count,
					Time:  ev.Time,
				}); err != nil {
					log.Errorf("metrics: record %s: %v", ev.Kind, err)
				}
			}
		}
	}()
}
