package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"relfind/internal/logging"
)

// cleanupStack releases server resources in reverse order of acquisition.
type cleanupStack struct {
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func(context.Context) error
}

func (s *cleanupStack) push(name string, fn func(context.Context) error) {
	s.items = append(s.items, cleanupItem{name: name, fn: fn})
}

// run releases every resource even when some fail. The returned error joins
// each failure, prefixed with the resource name.
func (s *cleanupStack) run(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		start := time.Now()
		err := item.fn(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
		if logger == nil {
			continue
		}
		if err != nil {
			logger.Warn("failed to release resource",
				slog.String("component", item.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("released resource",
			slog.String("component", item.name),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	}
	return errors.Join(errs...)
}

// Shutdown stops the HTTP server, closes the database and flushes the
// telemetry providers. Later calls return the result of the first.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		cleanup := a.cleanup
		a.started = false
		a.stateMu.Unlock()

		a.shutdownErr = cleanup.run(ctx, a.logger)
	})

	return a.shutdownErr
}
