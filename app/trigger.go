package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sita/sidang/core/events"
	"github.com/sita/sidang/core/journal"
	"github.com/sita/sidang/core/sidang"
	"github.com/sita/sidang/core/trigger"
)

// TriggerStatus returns the stored trigger.
func (s *Service) TriggerStatus(ctx context.Context) (trigger.Trigger, error) {
	return s.store.Trigger(ctx)
}

// ScheduleTrigger arms a single future run, replacing any pending one.
func (s *Service) ScheduleTrigger(ctx context.Context, runAt time.Time) (trigger.Trigger, error) {
	return s.changeTrigger(ctx, func(t trigger.Trigger, now time.Time) (trigger.Trigger, error) {
		return t.Schedule(runAt, now)
	})
}

// CancelTrigger disarms the pending run.
func (s *Service) CancelTrigger(ctx context.Context) (trigger.Trigger, error) {
	return s.changeTrigger(ctx, trigger.Trigger.Cancel)
}

func (s *Service) changeTrigger(ctx context.Context, fn func(trigger.Trigger, time.Time) (trigger.Trigger, error)) (trigger.Trigger, error) {
	if err := s.lock(ctx); err != nil {
		return trigger.Trigger{}, err
	}
	defer s.unlock(ctx)
	cur, err := s.store.Trigger(ctx)
	if err != nil {
		return trigger.Trigger{}, err
	}
	next, err := fn(cur, s.now())
	if err != nil {
		return cur, err
	}
	if err := s.store.SaveTrigger(ctx, next); err != nil {
		return cur, err
	}
	s.publish(events.ScheduleEvent{Kind: events.TriggerChanged, Reason: string(next.State)})
	return next, nil
}

// PollTrigger fires the pending run when it is due. It reports whether a
// run was attempted. A lease held elsewhere skips this tick.
func (s *Service) PollTrigger(ctx context.Context) (bool, error) {
	if err := s.lock(ctx); errors.Is(err, sidang.ErrLockContention) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	defer s.unlock(ctx)
	t, err := s.store.Trigger(ctx)
	if err != nil {
		return false, err
	}
	if !t.Due(s.now()) {
		return false, nil
	}
	s.log.Infof("trigger due at %s, starting run", t.RunAt.Format(time.RFC3339))
	if _, err := s.generate(ctx, journal.SourceTrigger); err != nil {
		if serr := s.store.SaveTrigger(ctx, t.Fail(s.now(), err)); serr != nil {
			return true, fmt.Errorf("save trigger after failed run: %w", serr)
		}
		return true, err
	}
	return true, nil
}

// StartPoller checks the trigger on every tick of spec until ctx ends.
func (s *Service) StartPoller(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(s.opts.Location))
	_, err := c.AddFunc(spec, func() {
		if _, err := s.PollTrigger(ctx); err != nil {
			s.log.Errorf("scheduled run: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("poll_cron: %w", err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
