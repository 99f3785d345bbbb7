// Package serverapp assembles the relfind server: telemetry, the data store,
// the entity registry, the require compiler and the HTTP stack.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"relfind/internal/config"
	"relfind/internal/datastore"
	"relfind/internal/logging"
	"relfind/internal/observability"
	"relfind/internal/reversal"
	"relfind/internal/schemagraph"
)

// App owns runtime resources for the relfind server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider  *observability.MeterProvider
	metrics        *observability.FilterMetrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	registry *schemagraph.Registry
	store    datastore.Store
	compiler *reversal.Compiler

	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// Registry returns the entity registry built during Init.
func (a *App) Registry() *schemagraph.Registry {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.registry
}
