package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "discrete fields",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "localhost",
				Port:     3306,
				User:     "root",
				Password: "password",
				Database: "world",
			},
			expected: "root:password@tcp(localhost:3306)/world?parseTime=true&loc=UTC",
		},
		{
			name: "special characters in password",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "db.example.com",
				Port:     3306,
				User:     "admin",
				Password: "p@ss:w0rd!",
				Database: "mydb",
			},
			expected: "admin:p@ss:w0rd!@tcp(db.example.com:3306)/mydb?parseTime=true&loc=UTC",
		},
		{
			name: "connection string gains parseTime and loc",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "u:p@tcp(h:4000)/world",
			},
			expected: "u:p@tcp(h:4000)/world?parseTime=true&loc=UTC",
		},
		{
			name: "connection string keeps explicit params",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "u:p@tcp(h:4000)/world?parseTime=false&loc=Local",
			},
			expected: "u:p@tcp(h:4000)/world?parseTime=false&loc=Local",
		},
		{
			name: "tls mode",
			config: DatabaseConfig{
				Driver:           DriverMySQL,
				ConnectionString: "u:p@tcp(h:4000)/world",
				TLS:              DatabaseTLSConfig{Mode: "verify-full"},
			},
			expected: "u:p@tcp(h:4000)/world?parseTime=true&loc=UTC&tls=" + tlsConfigName,
		},
		{
			name:     "sqlite path",
			config:   DatabaseConfig{Driver: DriverSQLite, SQLitePath: "/tmp/world.db"},
			expected: "/tmp/world.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestDatabaseConfig_EffectiveDatabaseName(t *testing.T) {
	d := DatabaseConfig{ConnectionString: "u:p@tcp(h:4000)/world"}
	name, err := d.EffectiveDatabaseName()
	assert.NoError(t, err)
	assert.Equal(t, "world", name)

	d.Database = "world"
	name, err = d.EffectiveDatabaseName()
	assert.NoError(t, err)
	assert.Equal(t, "world", name)

	d.Database = "other"
	_, err = d.EffectiveDatabaseName()
	assert.ErrorContains(t, err, "mismatch")

	_, err = (&DatabaseConfig{}).EffectiveDatabaseName()
	assert.ErrorContains(t, err, "no database name")
}

func validConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:                  DriverMySQL,
			Host:                    "localhost",
			Port:                    3306,
			Database:                "world",
			QueryTimeout:            10 * time.Second,
			Pool:                    PoolConfig{MaxOpen: 25, MaxIdle: 5},
			ConnectionTimeout:       time.Minute,
			ConnectionRetryInterval: 2 * time.Second,
		},
		Models:  ModelsConfig{Source: ModelSourceDatabase},
		Require: RequireConfig{Enabled: true, Entities: []string{"*"}, Methods: []string{"find", "findOne"}},
		Server:  ServerConfig{Port: 8080, BasePath: "/api"},
		Observability: ObservabilityConfig{
			TraceSampleRatio: 1,
			Logging:          LoggingConfig{Level: "info", Format: "json"},
			OTLP:             OTLPConfig{Endpoint: "localhost:4317", Protocol: "grpc", Compression: "gzip"},
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErrors  []string
		wantWarning string
	}{
		{
			name:   "valid defaults",
			mutate: func(*Config) {},
		},
		{
			name:       "invalid driver",
			mutate:     func(c *Config) { c.Database.Driver = "postgres" },
			wantErrors: []string{"database.driver", "models.source"},
		},
		{
			name: "memory driver with model file",
			mutate: func(c *Config) {
				c.Database.Driver = DriverMemory
				c.Models = ModelsConfig{Source: ModelSourceFile, File: "models.yaml"}
			},
		},
		{
			name: "introspection requires mysql",
			mutate: func(c *Config) {
				c.Database.Driver = DriverSQLite
				c.Database.SQLitePath = "world.db"
			},
			wantErrors: []string{"models.source"},
		},
		{
			name: "file source without file",
			mutate: func(c *Config) {
				c.Models = ModelsConfig{Source: ModelSourceFile}
			},
			wantErrors: []string{"models.file"},
		},
		{
			name:       "missing database name",
			mutate:     func(c *Config) { c.Database.Database = "" },
			wantErrors: []string{"database.database"},
		},
		{
			name:       "sqlite without path",
			mutate:     func(c *Config) { c.Database = DatabaseConfig{Driver: DriverSQLite}; c.Models = ModelsConfig{Source: ModelSourceFile, File: "m.yaml"} },
			wantErrors: []string{"database.sqlite_path"},
		},
		{
			name: "seed file outside memory driver",
			mutate: func(c *Config) {
				c.Database.SeedFile = "seed.yaml"
			},
			wantWarning: "database.seed_file",
		},
		{
			name:       "bad require method",
			mutate:     func(c *Config) { c.Require.Methods = []string{"find", "count"} },
			wantErrors: []string{"require.methods"},
		},
		{
			name:       "bad allow path glob",
			mutate:     func(c *Config) { c.Require.AllowPaths = map[string][]string{"Product": {"[city"}} },
			wantErrors: []string{"require.allow_paths"},
		},
		{
			name:        "require without entities",
			mutate:      func(c *Config) { c.Require.Entities = nil },
			wantWarning: "require.entities",
		},
		{
			name:       "base path without slash",
			mutate:     func(c *Config) { c.Server.BasePath = "api" },
			wantErrors: []string{"server.base_path"},
		},
		{
			name: "rate limit enabled without values",
			mutate: func(c *Config) {
				c.Server.RateLimitEnabled = true
			},
			wantErrors: []string{"server.rate_limit_rps", "server.rate_limit_burst"},
		},
		{
			name: "cors wildcard with credentials",
			mutate: func(c *Config) {
				c.Server.CORSEnabled = true
				c.Server.CORSAllowedOrigins = []string{"*"}
				c.Server.CORSAllowCredentials = true
			},
			wantErrors:  []string{"server.cors_allowed_origins"},
			wantWarning: "server.cors_allowed_origins",
		},
		{
			name:       "invalid log level",
			mutate:     func(c *Config) { c.Observability.Logging.Level = "verbose" },
			wantErrors: []string{"observability.logging.level"},
		},
		{
			name: "invalid otlp http endpoint",
			mutate: func(c *Config) {
				c.Observability.Traces = &OTLPConfig{Protocol: "http/protobuf", Endpoint: "not a url"}
			},
			wantErrors: []string{"observability.traces.endpoint"},
		},
		{
			name:       "negative query timeout",
			mutate:     func(c *Config) { c.Database.QueryTimeout = -time.Second },
			wantErrors: []string{"database.query_timeout"},
		},
		{
			name:       "tls verify without ca",
			mutate:     func(c *Config) { c.Database.TLS.Mode = "verify-ca" },
			wantErrors: []string{"database.tls.ca_file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			result := cfg.Validate()

			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			if len(tt.wantErrors) == 0 {
				assert.False(t, result.HasErrors(), "unexpected errors: %s", result.Error())
			}
			for _, want := range tt.wantErrors {
				assert.Contains(t, fields, want, "errors: %s", result.Error())
			}
			if tt.wantWarning != "" {
				var warned bool
				for _, w := range result.Warnings {
					if w.Field == tt.wantWarning {
						warned = true
					}
				}
				assert.True(t, warned, "expected warning on %s, got %+v", tt.wantWarning, result.Warnings)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "server.port", Message: "bad port"}
	assert.Equal(t, "server.port: bad port", err.Error())

	err.Hint = "use 8080"
	assert.Equal(t, "server.port: bad port (hint: use 8080)", err.Error())

	result := &ValidationResult{Errors: []ValidationError{
		{Field: "a", Message: "one"},
		{Field: "b", Message: "two"},
	}}
	assert.True(t, strings.Contains(result.Error(), "a: one; b: two"))
	assert.Empty(t, (&ValidationResult{}).Error())
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint:    "collector:4317",
		Protocol:    "grpc",
		Headers:     map[string]string{"a": "1"},
		Timeout:     10 * time.Second,
		Compression: "gzip",
	}
	obs := ObservabilityConfig{
		OTLP:   base,
		Traces: &OTLPConfig{Endpoint: "traces:4318", Protocol: "http/protobuf", Insecure: true, Headers: map[string]string{"b": "2"}},
	}

	traces := obs.GetTracesConfig()
	assert.Equal(t, "traces:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.True(t, traces.Insecure)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, traces.Headers)
	assert.Equal(t, 10*time.Second, traces.Timeout)

	assert.Equal(t, base, obs.GetLogsConfig())
}
