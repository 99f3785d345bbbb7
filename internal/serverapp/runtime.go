package serverapp

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"relfind/internal/config"
)

// Reasons returned by WaitForStop.
const (
	StopSignal      = "signal"
	StopServerError = "server_error"
)

// Start launches the HTTP server goroutine. It requires Init to have completed.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.started {
		return a.serverErrors, nil
	}

	a.logCollections()
	a.serverErrors = startServer(a.cfg, a.logger, a.srv, a.serverAddr)
	a.started = true
	return a.serverErrors, nil
}

// logCollections reports the find routes the server is about to expose.
// Callers hold stateMu.
func (a *App) logCollections() {
	if a.registry == nil || a.logger == nil {
		return
	}
	names := a.registry.Names()
	collections := make([]string, 0, len(names))
	for _, name := range names {
		if entity, err := a.registry.Entity(name); err == nil {
			collections = append(collections, entity.Plural)
		}
	}
	a.logger.Info("serving collections",
		slog.String("address", a.serverAddr),
		slog.String("store", storeKind(a.cfg)),
		slog.Int("entities", len(collections)),
		slog.String("collections", strings.Join(collections, ",")),
	)
}

func storeKind(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.Database.Driver
}

// WaitForStop blocks until a signal arrives on stop or the server reports on
// serverErrors. Either channel may be nil; a nil serverErrors falls back to
// the channel returned by Start.
func (a *App) WaitForStop(stop <-chan os.Signal, serverErrors <-chan error) (reason string, err error) {
	if serverErrors == nil {
		a.stateMu.Lock()
		serverErrors = a.serverErrors
		a.stateMu.Unlock()
	}
	if stop == nil && serverErrors == nil {
		return "", fmt.Errorf("both stop and serverErrors channels are nil")
	}

	// A nil channel never becomes ready, so one select covers both.
	select {
	case err := <-serverErrors:
		if err == nil {
			return StopServerError, fmt.Errorf("server stopped unexpectedly")
		}
		return StopServerError, fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("received shutdown signal",
				slog.String("signal", sig.String()),
				slog.String("address", a.serverAddr),
			)
		}
		return StopSignal, nil
	}
}
