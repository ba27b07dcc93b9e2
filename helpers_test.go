package lum

import (
	"context"
	"fmt"
	"sync"
)

// testLogger captures structured log records for assertions.
type testLogger struct {
	mu      sync.Mutex
	records []logRecord
}

type logRecord struct {
	level string
	msg   string
	args  []any
}

func newTestLogger() *testLogger {
	return &testLogger{}
}

func (l *testLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, args: args})
}

func (l *testLogger) Info(msg string, args ...any)  { l.log("info", msg, args...) }
func (l *testLogger) Error(msg string, args ...any) { l.log("error", msg, args...) }
func (l *testLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args...) }
func (l *testLogger) Debug(msg string, args ...any) { l.log("debug", msg, args...) }

// contains reports whether a record at the given level mentions both the
// message and, among its args, the given value.
func (l *testLogger) contains(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.level == level && r.msg == msg {
			return true
		}
	}
	return false
}

// testModule is a configurable mock module used across the package tests.
type testModule struct {
	name     string
	deps     []string
	priority Priority

	initFn    func(ctx context.Context, core *CoreContext) error
	stopFn    func(ctx context.Context) error
	handlerFn func(ctx context.Context, event Event) error

	mu        sync.Mutex
	initCalls int
	stopCalls int
	core      *CoreContext
}

func newTestModule(name string, deps ...string) *testModule {
	return &testModule{name: name, deps: deps}
}

func (m *testModule) Name() string {
	return m.name
}

func (m *testModule) Dependencies() []string {
	return m.deps
}

func (m *testModule) Priority() Priority {
	return m.priority
}

func (m *testModule) Init(ctx context.Context, core *CoreContext) error {
	m.mu.Lock()
	m.initCalls++
	m.core = core
	m.mu.Unlock()

	if m.initFn != nil {
		return m.initFn(ctx, core)
	}
	return nil
}

func (m *testModule) initCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initCalls
}

// stoppableTestModule adds teardown to testModule.
type stoppableTestModule struct {
	*testModule
}

func newStoppableTestModule(name string, deps ...string) *stoppableTestModule {
	return &stoppableTestModule{testModule: newTestModule(name, deps...)}
}

func (m *stoppableTestModule) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopCalls++
	m.mu.Unlock()

	if m.stopFn != nil {
		return m.stopFn(ctx)
	}
	return nil
}

// handlerTestModule adds event handling to testModule.
type handlerTestModule struct {
	*testModule
}

func newHandlerTestModule(name string, deps ...string) *handlerTestModule {
	return &handlerTestModule{testModule: newTestModule(name, deps...)}
}

func (m *handlerTestModule) HandleEvent(ctx context.Context, event Event) error {
	if m.handlerFn != nil {
		return m.handlerFn(ctx, event)
	}
	return nil
}

// newTestOrchestrator wires an orchestrator with fresh collaborators.
func newTestOrchestrator(config OrchestratorConfig) (*Orchestrator, *CapabilityRegistry, *Dispatcher, *testLogger) {
	logger := newTestLogger()
	capabilities := NewCapabilityRegistry()
	dispatcher := NewDispatcher(DispatcherConfig{}, nil, logger)
	orchestrator := NewOrchestrator(config, capabilities, dispatcher, nil, logger)
	return orchestrator, capabilities, dispatcher, logger
}

var errBoom = fmt.Errorf("boom")
