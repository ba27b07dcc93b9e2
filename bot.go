package lum

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Process exit codes returned by Bot.Run.
const (
	// ExitOK: clean shutdown.
	ExitOK = 0

	// ExitStartupFailed: dependency resolution failed or an essential
	// module did not reach Running.
	ExitStartupFailed = 1

	// ExitShutdownFailed: teardown reported aggregate errors.
	ExitShutdownFailed = 2
)

// ExitReason describes why Run stopped waiting.
type ExitReason int

const (
	ExitReasonSignal ExitReason = iota
	ExitReasonEssentialFailed
	ExitReasonContextDone
)

func (r ExitReason) String() string {
	switch r {
	case ExitReasonSignal:
		return "signal"
	case ExitReasonEssentialFailed:
		return "essential module failed"
	case ExitReasonContextDone:
		return "context cancelled"
	default:
		return "unknown"
	}
}

// EventSource is the seam to the gateway collaborator: anything that can
// produce an ordered stream of events. The bot pumps the stream into the
// dispatcher without reordering.
type EventSource interface {
	// Subscribe returns the event stream. The source should close the
	// channel when ctx is cancelled or the stream ends.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Bot is the orchestration entry point: it owns the capability registry,
// the dispatcher, and the lifecycle orchestrator, and turns a module set
// plus a capability set into a running process.
type Bot struct {
	name         string
	logger       Logger
	capabilities *CapabilityRegistry
	observers    *ObserverRegistry
	dispatcher   *Dispatcher
	orchestrator *Orchestrator
	source       EventSource
}

// BotBuilder assembles a Bot step by step. A duplicate module registration
// is warned about and ignored, keeping the first registration.
type BotBuilder struct {
	name         string
	logger       Logger
	modules      []Module
	capabilities map[string]any
	capOrder     []string
	observers    []builderObserver
	source       EventSource
	config       *Config
}

type builderObserver struct {
	observer   Observer
	eventTypes []string
}

// NewBotBuilder creates a builder for a bot with the given name.
func NewBotBuilder(name string) *BotBuilder {
	return &BotBuilder{
		name:         name,
		capabilities: make(map[string]any),
	}
}

// WithLogger sets the bot's logger. Required.
func (b *BotBuilder) WithLogger(logger Logger) *BotBuilder {
	b.logger = logger
	return b
}

// WithModule registers a module.
func (b *BotBuilder) WithModule(m Module) *BotBuilder {
	b.modules = append(b.modules, m)
	return b
}

// WithModules registers several modules in order.
func (b *BotBuilder) WithModules(modules ...Module) *BotBuilder {
	b.modules = append(b.modules, modules...)
	return b
}

// WithCapability registers a capability before orchestration begins.
func (b *BotBuilder) WithCapability(key string, value any) *BotBuilder {
	if _, exists := b.capabilities[key]; !exists {
		b.capOrder = append(b.capOrder, key)
	}
	b.capabilities[key] = value
	return b
}

// WithObserver registers a CloudEvents observer for framework diagnostics.
func (b *BotBuilder) WithObserver(observer Observer, eventTypes ...string) *BotBuilder {
	b.observers = append(b.observers, builderObserver{observer: observer, eventTypes: eventTypes})
	return b
}

// WithEventSource attaches the gateway collaborator.
func (b *BotBuilder) WithEventSource(source EventSource) *BotBuilder {
	b.source = source
	return b
}

// WithConfig applies framework settings. Nil means DefaultConfig.
func (b *BotBuilder) WithConfig(config *Config) *BotBuilder {
	b.config = config
	return b
}

// Build assembles the bot. It fails with ErrLoggerNotSet when no logger was
// provided and with ErrDuplicateCapability on conflicting capability keys.
func (b *BotBuilder) Build() (*Bot, error) {
	if b.logger == nil {
		return nil, ErrLoggerNotSet
	}

	config := b.config
	if config == nil {
		config = DefaultConfig()
	}

	capabilities := NewCapabilityRegistry()
	observers := NewObserverRegistry(b.logger)
	dispatcher := NewDispatcher(DispatcherConfig{QueueSize: config.EventQueueSize}, observers, b.logger)
	orchestrator := NewOrchestrator(OrchestratorConfig{
		InitTimeout: config.InitTimeout.Std(),
		StopTimeout: config.StopTimeout.Std(),
	}, capabilities, dispatcher, observers, b.logger)

	bot := &Bot{
		name:         b.name,
		logger:       b.logger,
		capabilities: capabilities,
		observers:    observers,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		source:       b.source,
	}

	for _, entry := range b.observers {
		observers.RegisterObserver(entry.observer, entry.eventTypes...)
	}

	// The framework's own capabilities, available to every module.
	if err := capabilities.Register(CapabilityStatus, StatusReporter(orchestrator)); err != nil {
		return nil, err
	}
	if err := capabilities.Register(CapabilityEvents, observers); err != nil {
		return nil, err
	}

	for _, key := range b.capOrder {
		if err := capabilities.Register(key, b.capabilities[key]); err != nil {
			return nil, err
		}
	}

	for _, m := range b.modules {
		if err := orchestrator.Register(m); err != nil {
			if errors.Is(err, ErrDuplicateModule) {
				b.logger.Warn("Module already registered, ignoring duplicate", "module", m.Name())
				continue
			}
			return nil, err
		}
	}

	return bot, nil
}

// Name returns the bot's name.
func (bot *Bot) Name() string {
	return bot.name
}

// Capabilities returns the bot's capability registry, for registrations
// before Start.
func (bot *Bot) Capabilities() *CapabilityRegistry {
	return bot.capabilities
}

// Status returns the bot's status reporter.
func (bot *Bot) Status() StatusReporter {
	return bot.orchestrator
}

// Dispatch feeds one gateway event into the dispatcher. Safe to call from
// the gateway collaborator at any time; only Running modules receive it.
func (bot *Bot) Dispatch(event Event) {
	bot.dispatcher.Dispatch(event)
}

// Start resolves dependencies and initializes all modules. A resolver error
// aborts before any module initializes; per-module failures are contained
// and reflected in Status.
func (bot *Bot) Start(ctx context.Context) error {
	if err := bot.orchestrator.Start(ctx); err != nil {
		return err
	}
	bot.observers.NotifyObservers(ctx, NewCloudEvent(EventTypeApplicationStarted, "lum/bot", map[string]any{"name": bot.name}))
	return nil
}

// Stop tears all modules down and closes the dispatcher. It returns the
// aggregate set of teardown errors, if any.
func (bot *Bot) Stop(ctx context.Context) error {
	err := bot.orchestrator.Stop(ctx)
	bot.dispatcher.Close()
	bot.observers.NotifyObservers(ctx, NewCloudEvent(EventTypeApplicationStopped, "lum/bot", map[string]any{"name": bot.name}))
	return err
}

// Run starts the bot, pumps the event source if one is attached, and blocks
// until SIGINT/SIGTERM, cancellation of ctx, or failure of an essential
// module. It returns the process exit code.
func (bot *Bot) Run(ctx context.Context) int {
	if err := bot.Start(ctx); err != nil {
		bot.logger.Error("Startup failed", "error", err)
		return ExitStartupFailed
	}

	startupFailed := bot.orchestrator.OverallStatus() == StatusUnhealthy
	if startupFailed {
		bot.logger.Error("Essential module failed during startup", "report", bot.orchestrator.StatusReport())
	} else {
		reason := bot.wait(ctx)
		bot.logger.Info("Shutting down", "reason", reason)
		if reason == ExitReasonEssentialFailed {
			startupFailed = true
		}
	}

	stopCtx := context.Background()
	if err := bot.Stop(stopCtx); err != nil {
		bot.logger.Error("Shutdown reported errors", "error", err)
		if !startupFailed {
			return ExitShutdownFailed
		}
	}

	if startupFailed {
		return ExitStartupFailed
	}
	return ExitOK
}

// wait blocks until a termination condition and returns why.
func (bot *Bot) wait(ctx context.Context) ExitReason {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()
	if bot.source != nil {
		if err := bot.pump(pumpCtx); err != nil {
			bot.logger.Error("Event source unavailable", "error", err)
		}
	}

	for {
		select {
		case sig := <-sigCh:
			bot.logger.Info("Received signal", "signal", fmt.Sprint(sig))
			return ExitReasonSignal
		case <-ctx.Done():
			return ExitReasonContextDone
		case status := <-bot.orchestrator.Failures():
			bot.logger.Warn("Module failure observed", "module", status.Name, "cause", status.Cause)
			if bot.orchestrator.OverallStatus() == StatusUnhealthy {
				return ExitReasonEssentialFailed
			}
		}
	}
}

// pump forwards the gateway stream into the dispatcher, preserving arrival
// order.
func (bot *Bot) pump(ctx context.Context) error {
	events, err := bot.source.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for event := range events {
			bot.dispatcher.Dispatch(event)
		}
		bot.logger.Debug("Event source stream ended")
	}()
	return nil
}
