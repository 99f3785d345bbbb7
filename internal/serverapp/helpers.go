package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relfind/internal/api"
	"relfind/internal/config"
	"relfind/internal/datastore"
	"relfind/internal/dbexec"
	"relfind/internal/introspection"
	"relfind/internal/logging"
	"relfind/internal/middleware"
	"relfind/internal/naming"
	"relfind/internal/observability"
	"relfind/internal/reversal"
	"relfind/internal/schemafilter"
	"relfind/internal/schemagraph"
	"relfind/internal/sqlutil"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     exporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func exporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.FilterMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, err
	}

	metrics, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")
	return meterProvider, metrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       exporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

// sqlDriver maps the configured driver onto a database/sql driver name and
// its semantic-convention system attribute.
func sqlDriver(driver string) (string, attribute.KeyValue) {
	if driver == config.DriverSQLite {
		return "sqlite3", semconv.DBSystemSqlite
	}
	return "mysql", semconv.DBSystemMySQL
}

// connectDB opens the SQL connection pool. The memory driver has no
// database and returns a nil *sql.DB.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Info("using in-memory store")
		return nil, nil, nil
	}

	if cfg.Database.Driver == config.DriverMySQL {
		// Register custom TLS configuration if needed (for verify-ca/verify-full modes)
		if err := cfg.Database.RegisterTLS(); err != nil {
			return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
		}
		logger.Info("connecting to MySQL",
			slog.String("host", cfg.Database.Host),
			slog.Int("port", cfg.Database.Port),
			slog.Bool("dsn_present", strings.TrimSpace(cfg.Database.ConnectionString) != ""),
		)
	} else {
		logger.Info("opening SQLite database", slog.String("path", cfg.Database.SQLitePath))
	}

	driverName, system := sqlDriver(cfg.Database.Driver)
	dsn := cfg.Database.DSN()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{otelsql.WithAttributes(system)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}
	if cfg.Observability.SQLCommenterEnabled && cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSQLCommenter(true))
		logger.Info("SQLCommenter enabled - trace context will be injected into SQL queries")
	} else if cfg.Observability.SQLCommenterEnabled {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open(driverName, dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(system))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
		slog.Bool("sqlcommenter", cfg.Observability.SQLCommenterEnabled && cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("driver", cfg.Database.Driver),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

// buildRegistry loads entity definitions from the model file, or introspects
// the connected database.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) (*schemagraph.Registry, error) {
	namer := naming.New(cfg.Naming, logger.Logger)

	var reg *schemagraph.Registry
	switch cfg.Models.Source {
	case config.ModelSourceFile:
		var err error
		reg, err = schemagraph.LoadFile(cfg.Models.File, namer)
		if err != nil {
			return nil, err
		}
	case config.ModelSourceDatabase:
		if db == nil {
			return nil, fmt.Errorf("models.source %q requires a database connection", config.ModelSourceDatabase)
		}
		databaseName, err := cfg.Database.EffectiveDatabaseName()
		if err != nil {
			return nil, err
		}
		schema, err := introspection.IntrospectDatabase(ctx, db, databaseName)
		if err != nil {
			return nil, fmt.Errorf("failed to introspect database %q: %w", databaseName, err)
		}
		schemafilter.Apply(schema, cfg.SchemaFilters)
		reg, err = introspection.BuildRegistry(ctx, schema, namer, logger.Logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown models.source %q", cfg.Models.Source)
	}

	logger.Info("entity registry built",
		slog.String("source", cfg.Models.Source),
		slog.Int("entities", len(reg.Names())),
		slog.Any("names", reg.Names()),
	)
	return reg, nil
}

func buildStore(cfg *config.Config, logger *logging.Logger, db *sql.DB, reg *schemagraph.Registry, metrics *observability.FilterMetrics) (datastore.Store, error) {
	if db == nil {
		store := datastore.NewMemoryStore(reg, metrics)
		if cfg.Database.SeedFile != "" {
			if err := store.LoadSeedFile(cfg.Database.SeedFile); err != nil {
				return nil, err
			}
			logger.Info("seed data loaded", slog.String("seed_file", cfg.Database.SeedFile))
		}
		return store, nil
	}

	var executor dbexec.QueryExecutor = dbexec.NewStandardExecutor(db)
	if cfg.Database.QueryTimeout > 0 {
		executor = dbexec.NewTimeoutExecutor(executor, cfg.Database.QueryTimeout)
	}
	return datastore.NewSQLStore(executor, reg, sqlutil.ParseDialect(cfg.Database.Driver), metrics), nil
}

// requirePolicy converts config into a reversal policy. An empty allow_paths
// map means no restriction.
func requirePolicy(cfg config.RequireConfig) reversal.Policy {
	policy := reversal.Policy{MaxPathDepth: cfg.MaxPathDepth}
	if len(cfg.AllowPaths) > 0 {
		policy.AllowPaths = cfg.AllowPaths
	}
	return policy
}

func buildCompiler(cfg *config.Config, logger *logging.Logger, reg *schemagraph.Registry, store datastore.Store, metrics *observability.FilterMetrics) *reversal.Compiler {
	return reversal.New(reg, store,
		reversal.WithLogger(logger.With(slog.String("component", "reversal"))),
		reversal.WithMetrics(metrics),
		reversal.WithPolicy(requirePolicy(cfg.Require)),
	)
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, reg *schemagraph.Registry, store datastore.Store, metrics *observability.FilterMetrics, meterProvider *observability.MeterProvider) *http.ServeMux {
	apiHandler := api.NewHandler(reg, store,
		api.WithMetrics(metrics),
		api.WithLimits(cfg.Server.DefaultLimit, cfg.Server.MaxLimit),
	)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler.Routes(cfg.Server.BasePath))
	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, reg *schemagraph.Registry, compiler middleware.FilterCompiler, metrics *observability.FilterMetrics, handler http.Handler) http.Handler {
	if cfg.Require.Enabled {
		handler = middleware.RequireFilter(middleware.RequireConfig{
			BasePath: cfg.Server.BasePath,
			Entities: cfg.Require.Entities,
			Methods:  cfg.Require.Methods,
		}, reg, compiler)(handler)
		logger.Info("require filters enabled",
			slog.Any("entities", cfg.Require.Entities),
			slog.Any("methods", cfg.Require.Methods),
		)
	}

	if metrics != nil {
		handler = middleware.RequestMetricsMiddleware(metrics, cfg.Server.BasePath)(handler)
	}

	handler = middleware.LoggingMiddleware(logger)(handler)

	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		basePath := cfg.Server.BasePath
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(basePath, r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.Server.RateLimitEnabled,
			RPS:     cfg.Server.RateLimitRPS,
			Burst:   cfg.Server.RateLimitBurst,
		})(handler)
	}

	return handler
}

func httpRootSpanName(basePath string, r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(basePath, r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality: collection names
// are replaced by a placeholder.
func normalizeHTTPSpanRoute(basePath, rawPath string) string {
	switch rawPath {
	case "/health", "/metrics":
		return rawPath
	}
	route, ok := api.ParseRoute(basePath, rawPath)
	if !ok {
		return "/*"
	}
	base := strings.TrimRight(basePath, "/")
	if route.Method == api.MethodFindOne {
		return base + "/{collection}/findOne"
	}
	return base + "/{collection}"
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("api_base_path", cfg.Server.BasePath),
			slog.String("health_endpoint", "/health"),
			slog.String("database_driver", cfg.Database.Driver),
			slog.Bool("require_enabled", cfg.Require.Enabled),
			slog.String("log_level", cfg.Observability.Logging.Level),
			slog.String("log_format", cfg.Observability.Logging.Format),
		}

		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}

		if cfg.Server.RateLimitEnabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}

		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks. A nil db reports
// the in-memory store as healthy.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if db == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprint(w, `{"status":"healthy","store":"memory"}`)
			return
		}

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Return generic error message to avoid leaking internal details
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
