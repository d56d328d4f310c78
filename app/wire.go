package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sita/sidang/app/plugins"
	"github.com/sita/sidang/config"
	"github.com/sita/sidang/core/events"
	"github.com/sita/sidang/core/journal"
	coremetrics "github.com/sita/sidang/core/metrics"
	"github.com/sita/sidang/core/store"
	"github.com/sita/sidang/infra/logger"
	"github.com/sita/sidang/infra/metrics"
	"github.com/sita/sidang/infra/notify"
	"github.com/sita/sidang/internal/eventbus"
)

// App is a fully wired service with its background workers.
type App struct {
	Service *Service
	Store   store.Store

	cfg       *config.Config
	journal   journal.Store
	sink      coremetrics.MetricsSink
	bus       *eventbus.Bus[events.ScheduleEvent]
	publisher *notify.Publisher
	log       logger.Logger
}

// New builds every collaborator named by cfg.
func New(cfg *config.Config) (*App, error) {
	logger.SetLevel(cfg.Logging.Level)
	logg := logger.New("service")
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	st, err := plugins.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	j, err := journal.New(cfg.Journal)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = st.Close()
		_ = j.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	var pub *notify.Publisher
	if cfg.Notify.Enabled() {
		if pub, err = notify.NewPublisher(cfg.Notify); err != nil {
			_ = st.Close()
			_ = j.Close()
			return nil, fmt.Errorf("notify: %w", err)
		}
	}
	bus := eventbus.New[events.ScheduleEvent](eventbus.DefaultBuffer)
	svc := NewService(Deps{
		Store:   st,
		Journal: j,
		Sink:    sink,
		Bus:     bus,
		Log:     logg,
	}, Options{
		HorizonDays:     cfg.Scheduler.HorizonDays,
		StartOffsetDays: cfg.Scheduler.StartOffsetDays,
		Mapping:         cfg.Scheduler.Mapping(),
		Location:        loc,
		LockTTL:         cfg.Scheduler.LockTTL(),
	})
	return &App{
		Service:   svc,
		Store:     st,
		cfg:       cfg,
		journal:   j,
		sink:      sink,
		bus:       bus,
		publisher: pub,
		log:       logg,
	}, nil
}

// Start launches the trigger poller, the metrics collector and the
// notifier. They stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Service.StartPoller(ctx, a.cfg.Scheduler.PollCron); err != nil {
		return err
	}
	metrics.StartEventCollector(ctx, a.bus, a.sink, a.log)
	if a.publisher != nil {
		a.publisher.Start(ctx, a.bus)
	}
	a.log.Infof("scheduler started: store=%s poll=%q", a.cfg.Store.Backend, a.cfg.Scheduler.PollCron)
	return nil
}

// Close releases every resource.
func (a *App) Close() error {
	a.bus.Close()
	if a.publisher != nil {
		a.publisher.Disconnect()
	}
	if c, ok := a.sink.(interface{ Close() }); ok {
		c.Close()
	}
	return errors.Join(a.journal.Close(), a.Store.Close())
}
