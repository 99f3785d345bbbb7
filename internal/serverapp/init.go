package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("OTLP logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("prometheus meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("OTLP tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if db != nil {
		cleanup.push(a.cfg.Database.Driver+" database", func(_ context.Context) error {
			if dbStatsReg != nil {
				if err := dbStatsReg.Unregister(); err != nil {
					a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
				}
			}
			return db.Close()
		})
		if err := configureDatabase(ctx, a.cfg, a.logger, db); err != nil {
			return fmt.Errorf("failed to verify database connection: %w", err)
		}
	}

	registry, err := buildRegistry(ctx, a.cfg, a.logger, db)
	if err != nil {
		return fmt.Errorf("failed to build entity registry: %w", err)
	}

	store, err := buildStore(a.cfg, a.logger, db, registry, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize data store: %w", err)
	}

	compiler := buildCompiler(a.cfg, a.logger, registry, store, metrics)

	mux := buildRouter(a.cfg, a.logger, db, registry, store, metrics, meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, registry, compiler, metrics, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("find API server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.dbStatsReg = dbStatsReg
	a.registry = registry
	a.store = store
	a.compiler = compiler
	a.mux = mux
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
