// Package watchdog provides a built-in module that periodically sweeps the
// bot's health and raises diagnostics when modules have failed.
package watchdog

import (
	"context"
	"fmt"

	"github.com/Kitt3120/lum"
	"github.com/robfig/cron/v3"
)

// ModuleName is the name of this module.
const ModuleName = "watchdog"

// DefaultSchedule runs a sweep every 30 seconds.
const DefaultSchedule = "@every 30s"

// Module is the watchdog module. On every tick it reads the bot's overall
// status and logs degradation; when the bot is unhealthy it also emits a
// CloudEvent so external observers can alert.
type Module struct {
	schedule string
	logger   lum.Logger
	status   lum.StatusReporter
	events   *lum.ObserverRegistry
	cron     *cron.Cron
}

// New creates a watchdog with the given cron schedule. An empty schedule
// means DefaultSchedule.
func New(schedule string) *Module {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Module{schedule: schedule}
}

// Name returns the name of the module.
func (m *Module) Name() string {
	return ModuleName
}

// Dependencies declares the framework capabilities the watchdog reads.
func (m *Module) Dependencies() []string {
	return []string{lum.CapabilityStatus, lum.CapabilityEvents}
}

// Init validates the schedule and starts the sweep timer.
func (m *Module) Init(ctx context.Context, core *lum.CoreContext) error {
	m.logger = core.Logger()

	status, err := lum.CapabilityAs[lum.StatusReporter](core, lum.CapabilityStatus)
	if err != nil {
		return err
	}
	m.status = status

	events, err := lum.CapabilityAs[*lum.ObserverRegistry](core, lum.CapabilityEvents)
	if err != nil {
		return err
	}
	m.events = events

	m.cron = cron.New()
	if _, err := m.cron.AddFunc(m.schedule, m.sweep); err != nil {
		return fmt.Errorf("invalid watchdog schedule %q: %w", m.schedule, err)
	}
	m.cron.Start()

	m.logger.Info("Watchdog started", "schedule", m.schedule)
	return nil
}

// Stop halts the sweep timer, waiting for an in-flight sweep within the
// shutdown grace period.
func (m *Module) Stop(ctx context.Context) error {
	stopped := m.cron.Stop()
	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sweep reads the overall status once and reports on it.
func (m *Module) sweep() {
	overall := m.status.OverallStatus()
	switch overall {
	case lum.StatusHealthy:
		m.logger.Debug("Watchdog sweep", "status", overall)
	case lum.StatusDegraded:
		m.logger.Warn("Bot degraded", "report", m.status.StatusReport())
	case lum.StatusUnhealthy:
		m.logger.Error("Bot unhealthy", "report", m.status.StatusReport())
		event := lum.NewCloudEvent(lum.EventTypeHealthDegraded, "lum/watchdog", map[string]any{
			"status": overall.String(),
			"report": m.status.StatusReport(),
		})
		m.events.NotifyObservers(context.Background(), event)
	}
}
