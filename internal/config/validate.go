package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"relfind/internal/naming"
	"relfind/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.validateModels(result)
	c.Require.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateSchemaFilters(result, c.SchemaFilters)
	validateNamingConfig(result, c.Naming)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.Driver {
	case DriverMySQL:
		d.validateMySQL(result)
	case DriverSQLite:
		if strings.TrimSpace(d.SQLitePath) == "" {
			result.addError("database.sqlite_path", "sqlite_path is required for the sqlite driver", "")
		}
	case DriverMemory:
	default:
		result.addError("database.driver", fmt.Sprintf("invalid driver %q", d.Driver), "valid values are: mysql, sqlite, memory")
	}

	if d.SeedFile != "" && d.Driver != DriverMemory {
		result.addWarning("database.seed_file", "seed_file is only loaded by the memory driver", "remove seed_file or set database.driver=memory")
	}
	if d.QueryTimeout < 0 {
		result.addError("database.query_timeout", "query_timeout cannot be negative", "")
	}

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.addWarning("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.addError("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.addError("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.addError("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.addWarning("database.connection_retry_interval", "connection_retry_interval is greater than connection_timeout", "only one connection attempt will be made")
	}
}

func (d *DatabaseConfig) validateMySQL(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.addError("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}
	if _, err := parseDSNDatabaseName(d.ConnectionString); err != nil {
		result.addError("database.dsn", err.Error(), "set a valid MySQL DSN in database.dsn/database.dsn_file")
	}
	d.TLS.validate(result)
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.addError("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.addError("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.addWarning("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (c *Config) validateModels(result *ValidationResult) {
	switch c.Models.Source {
	case ModelSourceFile:
		if strings.TrimSpace(c.Models.File) == "" {
			result.addError("models.file", "a model file is required when models.source is file", "")
		}
	case ModelSourceDatabase:
		if c.Database.Driver != DriverMySQL {
			result.addError("models.source",
				fmt.Sprintf("introspection is not supported for driver %q", c.Database.Driver),
				"use models.source=file with sqlite and memory drivers")
			return
		}
		if _, err := c.Database.EffectiveDatabaseName(); err != nil {
			result.addError("database.database", err.Error(), "set database.database or include a /database in database.dsn")
		}
	default:
		result.addError("models.source", fmt.Sprintf("invalid model source %q", c.Models.Source), "valid values are: file, database")
	}
}

func (r *RequireConfig) validate(result *ValidationResult) {
	if !r.Enabled {
		return
	}
	validateGlobList(result, "require.entities", r.Entities)
	validatePatternMap(result, "require.allow_paths", r.AllowPaths)
	if len(r.Entities) == 0 {
		result.addWarning("require.entities", "require is enabled but no entities accept it", "set require.entities to [\"*\"] or list entity globs")
	}
	validMethods := map[string]bool{"find": true, "findOne": true}
	for _, m := range r.Methods {
		if !validMethods[m] {
			result.addError("require.methods", fmt.Sprintf("invalid method %q", m), "valid values are: find, findOne")
		}
	}
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "schema_filters.allow_tables", filters.AllowTables)
	validateGlobList(result, "schema_filters.deny_tables", filters.DenyTables)
	validatePatternMap(result, "schema_filters.allow_columns", filters.AllowColumns)
	validatePatternMap(result, "schema_filters.deny_columns", filters.DenyColumns)
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for singular, plural := range cfg.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.addError("naming.plural_overrides", fmt.Sprintf("override %q -> %q cannot have empty names", singular, plural), "")
		}
	}
	for plural, singular := range cfg.SingularOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.addError("naming.singular_overrides", fmt.Sprintf("override %q -> %q cannot have empty names", plural, singular), "")
		}
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for keyPattern, valuePatterns := range patternMap {
		if strings.TrimSpace(keyPattern) == "" {
			result.addError(field, "key pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(keyPattern), "probe"); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob pattern %q: %v", keyPattern, err), "")
		}
		for _, valuePattern := range valuePatterns {
			if strings.TrimSpace(valuePattern) == "" {
				result.addError(field, fmt.Sprintf("pattern for %q cannot be empty", keyPattern), "")
				continue
			}
			if _, err := path.Match(strings.ToLower(valuePattern), "probe"); err != nil {
				result.addError(field, fmt.Sprintf("invalid glob pattern %q for %q: %v", valuePattern, keyPattern, err), "")
			}
		}
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.addError(field, "glob pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}
	if !strings.HasPrefix(s.BasePath, "/") {
		result.addError("server.base_path", fmt.Sprintf("base_path %q must start with /", s.BasePath), "")
	}
	if s.DefaultLimit < 0 {
		result.addError("server.default_limit", "default_limit cannot be negative", "")
	}
	if s.MaxLimit < 0 {
		result.addError("server.max_limit", "max_limit cannot be negative", "")
	}
	if s.MaxLimit > 0 && s.DefaultLimit > s.MaxLimit {
		result.addWarning("server.default_limit", "default_limit is greater than max_limit", "the default will be clamped to max_limit")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.addWarning("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled", "enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
		}
		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.addError("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials", "use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production for better security")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", fmt.Sprintf("trace_sample_ratio %v is out of range", o.TraceSampleRatio), "use a value from 0.0 to 1.0")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.addError(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
