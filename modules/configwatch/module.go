// Package configwatch provides a built-in module that watches the bot's
// config file and reports external changes. The module set is fixed at
// startup, so changes are surfaced as diagnostics rather than applied.
package configwatch

import (
	"context"
	"path/filepath"

	"github.com/Kitt3120/lum"
	"github.com/fsnotify/fsnotify"
)

// ModuleName is the name of this module.
const ModuleName = "configwatch"

// Module watches one config file and emits a CloudEvent when it changes.
type Module struct {
	path    string
	logger  lum.Logger
	events  *lum.ObserverRegistry
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New creates a watcher for the config file at path.
func New(path string) *Module {
	return &Module{path: path}
}

// Name returns the name of the module.
func (m *Module) Name() string {
	return ModuleName
}

// Dependencies declares the events capability used to publish changes.
func (m *Module) Dependencies() []string {
	return []string{lum.CapabilityEvents}
}

// Init starts watching the config file's directory. Editors replace files
// on save, so watching the directory catches renames the file watch would
// miss.
func (m *Module) Init(ctx context.Context, core *lum.CoreContext) error {
	m.logger = core.Logger()

	events, err := lum.CapabilityAs[*lum.ObserverRegistry](core, lum.CapabilityEvents)
	if err != nil {
		return err
	}
	m.events = events

	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := m.watcher.Add(filepath.Dir(m.path)); err != nil {
		_ = m.watcher.Close()
		return err
	}

	m.done = make(chan struct{})
	go m.watch()

	m.logger.Info("Watching config file", "path", m.path)
	return nil
}

// Stop closes the watcher and waits for the watch loop to exit.
func (m *Module) Stop(ctx context.Context) error {
	if err := m.watcher.Close(); err != nil {
		return err
	}
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Module) watch() {
	defer close(m.done)

	target := filepath.Clean(m.path)
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.logger.Info("Config file changed, restart to apply", "path", m.path, "op", event.Op.String())
			ce := lum.NewCloudEvent(lum.EventTypeConfigChanged, "lum/configwatch", map[string]any{
				"path": m.path,
				"op":   event.Op.String(),
			})
			m.events.NotifyObservers(context.Background(), ce)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("Config watcher error", "error", err)
		}
	}
}
