// Package statusapi provides a built-in module exposing the bot's health
// over HTTP: a liveness endpoint and per-module state snapshots.
package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/Kitt3120/lum"
	"github.com/go-chi/chi/v5"
)

// ModuleName is the name of this module.
const ModuleName = "statusapi"

// DefaultAddr is the default listen address.
const DefaultAddr = ":8745"

// Module serves GET /healthz, GET /status, and GET /status/report.
type Module struct {
	addr   string
	logger lum.Logger
	status lum.StatusReporter
	server *http.Server
}

// New creates a status API module listening on addr. An empty addr means
// DefaultAddr.
func New(addr string) *Module {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Module{addr: addr}
}

// Name returns the name of the module.
func (m *Module) Name() string {
	return ModuleName
}

// Dependencies declares the status capability this module reads.
func (m *Module) Dependencies() []string {
	return []string{lum.CapabilityStatus}
}

// Init binds the listen address and starts serving. Binding happens
// synchronously so port conflicts surface as initialization failures.
func (m *Module) Init(ctx context.Context, core *lum.CoreContext) error {
	m.logger = core.Logger()

	status, err := lum.CapabilityAs[lum.StatusReporter](core, lum.CapabilityStatus)
	if err != nil {
		return err
	}
	m.status = status

	router := chi.NewRouter()
	router.Get("/healthz", m.handleHealthz)
	router.Get("/status", m.handleStatus)
	router.Get("/status/report", m.handleReport)

	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}
	m.addr = listener.Addr().String()

	m.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := m.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Status API server stopped unexpectedly", "error", err)
			core.Fail(err)
		}
	}()

	m.logger.Info("Status API listening", "addr", m.addr)
	return nil
}

// Stop shuts the server down within the grace period.
func (m *Module) Stop(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

// Addr returns the bound listen address, useful when configured with
// port 0.
func (m *Module) Addr() string {
	return m.addr
}

func (m *Module) handleHealthz(w http.ResponseWriter, r *http.Request) {
	overall := m.status.OverallStatus()
	code := http.StatusOK
	if overall == lum.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": overall.String()})
}

func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Status  string             `json:"status"`
		Modules []lum.ModuleStatus `json:"modules"`
	}{
		Status:  m.status.OverallStatus().String(),
		Modules: m.status.ModuleStatuses(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (m *Module) handleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(m.status.StatusReport()))
}
