// internal/scheduler/scheduler.go
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/user/gopherfeed/internal/state"
)

// Handler is the callback invoked when a scheduled monitor fires.
type Handler func(monitor *state.Monitor)

// Scheduler evaluates cron expressions from the monitor store and
// fires monitors through a handler callback. A monitor that fails one
// run stays scheduled; recurring queries survive per-run faults.
type Scheduler struct {
	store   *state.MonitorStore
	handler Handler
	cron    *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Scheduler backed by the given monitor store. The
// handler is called each time a monitor fires.
func New(store *state.MonitorStore, handler Handler) *Scheduler {
	return &Scheduler{
		store:   store,
		handler: handler,
		cron:    cron.New(cron.WithParser(cronParser)),
	}
}

// Start loads monitors from the store, registers enabled monitors that
// have a schedule as cron entries, and starts the cron ticker.
func (s *Scheduler) Start() error {
	monitors, err := s.store.List()
	if err != nil {
		return err
	}

	for _, monitor := range monitors {
		if monitor.Schedule == "" || !monitor.Enabled {
			continue
		}

		m := monitor
		_, err := s.cron.AddFunc(m.Schedule, func() {
			slog.Info("cron firing monitor", "name", m.Name, "query", m.Query.Text)
			s.handler(m)
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", m.Name, "schedule", m.Schedule, "error", err)
			continue
		}
		slog.Info("scheduled monitor", "name", m.Name, "schedule", m.Schedule)
	}

	s.cron.Start()
	return nil
}

// Reload stops the existing cron, creates a new one, and calls Start() again.
func (s *Scheduler) Reload() error {
	s.cron.Stop()
	s.cron = cron.New(cron.WithParser(cronParser))
	return s.Start()
}

// Stop stops the cron ticker.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
