package config

import (
	"strings"
	"time"

	"github.com/marmos91/dapper/pkg/access"
	"github.com/marmos91/dapper/pkg/adapter/radius"
	"github.com/marmos91/dapper/pkg/api"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/datastore"
	"github.com/marmos91/dapper/pkg/session"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyLDAPDefaults(cfg)
	applyRadiusDefaults(&cfg.Radius)
	applyAuthDefaults(&cfg.Auth)
	applyDatastoreDefaults(&cfg.Datastore)
	applyAPIDefaults(&cfg.API)
	applySessionDefaults(&cfg.Sessions)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Default endpoint is localhost:4317 (standard OTLP gRPC port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	// Default endpoint is localhost:4040 (standard Pyroscope port)
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLDAPDefaults fills the standard port for the configured transport.
func applyLDAPDefaults(cfg *Config) {
	cfg.LDAP.Port = cfg.LDAP.ResolvePort()
	applyAccessDefaults(&cfg.LDAP.Access)
}

func applyRadiusDefaults(cfg *radius.Config) {
	if cfg.Port == 0 {
		cfg.Port = radius.DefaultPort
	}
	if len(cfg.Keys) == 0 {
		cfg.Keys = append([]string(nil), radius.DefaultKeys...)
	}
	for i, k := range cfg.Keys {
		cfg.Keys[i] = strings.ToLower(strings.TrimSpace(k))
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	applyAccessDefaults(&cfg.Access)
}

func applyAuthDefaults(cfg *auth.Config) {
	def := auth.DefaultConfig()
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Radius.Timeout == 0 {
		cfg.Radius.Timeout = def.Radius.Timeout
	}
	if cfg.Radius.Retry == 0 {
		cfg.Radius.Retry = def.Radius.Retry
	}
}

func applyDatastoreDefaults(cfg *datastore.Config) {
	if cfg.Provider == "" {
		cfg.Provider = datastore.ProviderMemory
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	// The SQLite path default lives under the config dir; only resolve it
	// when the sql provider is actually selected.
	if cfg.Provider == datastore.ProviderSQL {
		cfg.SQL.ApplyDefaults()
	}
}

func applyAPIDefaults(cfg *api.Config) {
	if cfg.Port == 0 {
		cfg.Port = api.DefaultPort
	}
	if cfg.Cookie == "" {
		cfg.Cookie = api.DefaultCookie
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	applyAccessDefaults(&cfg.Access)
}

func applySessionDefaults(cfg *session.Config) {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.File == "" {
		cfg.File = session.DefaultFile
	}
}

// applyAccessDefaults opens a listener to everyone when no policy is
// configured, and defaults the order when only lists are given.
func applyAccessDefaults(cfg *access.Config) {
	def := access.DefaultConfig()
	if cfg.Order == "" && len(cfg.Allow) == 0 && len(cfg.Deny) == 0 {
		cfg.Order = def.Order
		cfg.Allow = def.Allow
		return
	}
	if cfg.Order == "" {
		cfg.Order = def.Order
	}
	cfg.Order = access.NormalizeOrder(cfg.Order)
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg, err := newDefaulted()
	if err != nil {
		// Only reachable if a default tag is malformed.
		panic(err)
	}
	ApplyDefaults(cfg)
	return cfg
}
