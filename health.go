package lum

import (
	"fmt"
	"strings"
)

// OverallStatus summarizes the health of the whole bot.
type OverallStatus int

const (
	// StatusHealthy: every module is Running or cleanly Stopped.
	StatusHealthy OverallStatus = iota

	// StatusDegraded: at least one optional module has failed; the bot
	// keeps serving events through its healthy modules.
	StatusDegraded

	// StatusUnhealthy: an essential module has failed.
	StatusUnhealthy
)

func (s OverallStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// StatusReporter exposes bot health. The orchestrator implements it and the
// bot registers it under the CapabilityStatus key so modules (watchdog,
// status API) can observe it.
type StatusReporter interface {
	OverallStatus() OverallStatus
	ModuleStatuses() []ModuleStatus
	StatusReport() string
}

// OverallStatus derives bot health from module states.
func (o *Orchestrator) OverallStatus() OverallStatus {
	status := StatusHealthy
	for _, name := range o.registrationOrder() {
		instance := o.instances[name]
		if instance.State() != StateFailed {
			continue
		}
		if instance.descriptor.Priority == PriorityEssential {
			return StatusUnhealthy
		}
		status = StatusDegraded
	}
	return status
}

// ModuleStatuses returns a snapshot of every module's state, in
// registration order.
func (o *Orchestrator) ModuleStatuses() []ModuleStatus {
	names := o.registrationOrder()
	statuses := make([]ModuleStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, o.statusOf(o.instances[name]))
	}
	return statuses
}

// StatusReport renders a human-readable tree of module states, grouping
// failed essential modules first so the most urgent problems lead.
func (o *Orchestrator) StatusReport() string {
	var failedEssentials, failedOptionals, essentials, optionals strings.Builder

	for _, status := range o.ModuleStatuses() {
		line := fmt.Sprintf(" - %s: %s", status.Name, status.StateLabel)
		if status.Cause != "" {
			line += fmt.Sprintf(" (%s)", status.Cause)
		}
		line += "\n"

		switch {
		case status.State == StateFailed && status.Essential:
			failedEssentials.WriteString(line)
		case status.State == StateFailed:
			failedOptionals.WriteString(line)
		case status.Essential:
			essentials.WriteString(line)
		default:
			optionals.WriteString(line)
		}
	}

	var report strings.Builder
	appendGroup := func(title string, group *strings.Builder) {
		if group.Len() > 0 {
			report.WriteString("- " + title + ":\n")
			report.WriteString(group.String())
		}
	}
	appendGroup("Failed essential modules", &failedEssentials)
	appendGroup("Failed optional modules", &failedOptionals)
	appendGroup("Essential modules", &essentials)
	appendGroup("Optional modules", &optionals)

	return report.String()
}

func (o *Orchestrator) registrationOrder() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, len(o.order))
	copy(names, o.order)
	return names
}
