package watchdog

import (
	"context"
	"sync"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kitt3120/lum"
)

type testLogger struct {
	mu      sync.Mutex
	records []record
}

type record struct {
	level string
	msg   string
}

func (l *testLogger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record{level: level, msg: msg})
}

func (l *testLogger) Info(msg string, args ...any)  { l.log("info", msg) }
func (l *testLogger) Error(msg string, args ...any) { l.log("error", msg) }
func (l *testLogger) Warn(msg string, args ...any)  { l.log("warn", msg) }
func (l *testLogger) Debug(msg string, args ...any) { l.log("debug", msg) }

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

// fakeReporter scripts the health the watchdog observes.
type fakeReporter struct {
	status lum.OverallStatus
}

func (r *fakeReporter) OverallStatus() lum.OverallStatus   { return r.status }
func (r *fakeReporter) ModuleStatuses() []lum.ModuleStatus { return nil }
func (r *fakeReporter) StatusReport() string               { return "report" }

func newSweepableModule(status lum.OverallStatus, logger *testLogger) (*Module, *lum.ObserverRegistry) {
	events := lum.NewObserverRegistry(logger)
	m := New("")
	m.logger = logger
	m.status = &fakeReporter{status: status}
	m.events = events
	return m, events
}

func TestSweepHealthyStaysQuiet(t *testing.T) {
	logger := &testLogger{}
	m, _ := newSweepableModule(lum.StatusHealthy, logger)

	m.sweep()

	assert.True(t, logger.contains("debug", "Watchdog sweep"))
	assert.False(t, logger.contains("warn", "Bot degraded"))
	assert.False(t, logger.contains("error", "Bot unhealthy"))
}

func TestSweepDegradedWarns(t *testing.T) {
	logger := &testLogger{}
	m, _ := newSweepableModule(lum.StatusDegraded, logger)

	m.sweep()

	assert.True(t, logger.contains("warn", "Bot degraded"))
}

func TestSweepUnhealthyEmitsEvent(t *testing.T) {
	logger := &testLogger{}
	m, events := newSweepableModule(lum.StatusUnhealthy, logger)

	received := make(chan cloudevents.Event, 1)
	events.RegisterObserver(lum.NewFunctionalObserver("test", func(_ context.Context, event cloudevents.Event) error {
		received <- event
		return nil
	}), lum.EventTypeHealthDegraded)

	m.sweep()

	assert.True(t, logger.contains("error", "Bot unhealthy"))
	select {
	case event := <-received:
		assert.Equal(t, lum.EventTypeHealthDegraded, event.Type())
		assert.Contains(t, string(event.Data()), "unhealthy")
	case <-time.After(2 * time.Second):
		t.Fatal("no health event emitted")
	}
}

func TestModuleLifecycleThroughBot(t *testing.T) {
	logger := &testLogger{}
	bot, err := lum.NewBotBuilder("testbot").
		WithLogger(logger).
		WithModule(New("@every 30s")).
		Build()
	require.NoError(t, err)

	require.NoError(t, bot.Start(context.Background()))
	assert.True(t, logger.contains("info", "Watchdog started"))

	require.NoError(t, bot.Stop(context.Background()))
}

func TestInitRejectsInvalidSchedule(t *testing.T) {
	logger := &testLogger{}
	bot, err := lum.NewBotBuilder("testbot").
		WithLogger(logger).
		WithModule(New("not a schedule")).
		Build()
	require.NoError(t, err)

	require.NoError(t, bot.Start(context.Background()))

	statuses := bot.Status().ModuleStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "failed", statuses[0].StateLabel)
	assert.Contains(t, statuses[0].Cause, "invalid watchdog schedule")
}

func TestNewDefaultsSchedule(t *testing.T) {
	assert.Equal(t, DefaultSchedule, New("").schedule)
	assert.Equal(t, "@every 5s", New("@every 5s").schedule)
}
