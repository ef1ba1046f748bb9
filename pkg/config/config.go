package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dapper/internal/bytesize"
	"github.com/marmos91/dapper/internal/telemetry"
	"github.com/marmos91/dapper/pkg/adapter/ldap"
	"github.com/marmos91/dapper/pkg/adapter/radius"
	"github.com/marmos91/dapper/pkg/api"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/datastore"
	"github.com/marmos91/dapper/pkg/directory"
	"github.com/marmos91/dapper/pkg/session"
)

// EnvPrefix prefixes every environment override, e.g. DAPPER_LOGGING_LEVEL.
const EnvPrefix = "DAPPER"

// Config represents the dapper configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DAPPER_*)
//  3. Configuration file (YAML, JSON or TOML)
//  4. Default values (lowest priority)
//
// The directory entities themselves come from the datastore, not from this
// file, except for the memory provider's inline datastore.data document.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`

	// Metrics toggles Prometheus collection, exposed on the API /metrics route
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout" default:"30s" validate:"required,gt=0"`

	LDAP   ldap.Config   `mapstructure:"ldap" yaml:"ldap" json:"ldap"`
	Radius radius.Config `mapstructure:"radius" yaml:"radius" json:"radius"`

	// Auth selects the provider that verifies passwords for every protocol
	Auth auth.Config `mapstructure:"auth" yaml:"auth" json:"auth"`

	// Directory holds the DN naming options. A config object returned by the
	// datastore is merged over it.
	Directory directory.Config `mapstructure:"directory" yaml:"directory" json:"directory"`

	Datastore datastore.Config `mapstructure:"datastore" yaml:"datastore" json:"datastore"`

	API      api.Config     `mapstructure:"api" yaml:"api" json:"api"`
	Sessions session.Config `mapstructure:"sessions" yaml:"sessions" json:"sessions"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" json:"level" default:"INFO" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" json:"format" default:"text" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" json:"output" default:"stdout" validate:"required"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint" default:"localhost:4317"`

	// Insecure disables TLS towards the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure" json:"insecure" default:"true"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" json:"sample_rate" default:"1.0" validate:"omitempty,gte=0,lte=1"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling" json:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Endpoint is the Pyroscope server URL
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint" default:"http://localhost:4040"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types" json:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration"`
}

// MetricsConfig toggles Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// Tracing converts the section into the telemetry package's config.
func (c TelemetryConfig) Tracing(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Enabled = c.Enabled
	tc.Endpoint = c.Endpoint
	tc.Insecure = c.Insecure
	tc.SampleRate = c.SampleRate
	if version != "" {
		tc.ServiceVersion = version
	}
	return tc
}

// Profiler converts the profiling section into the telemetry package's
// config.
func (c TelemetryConfig) Profiler(version string) telemetry.ProfilingConfig {
	pc := telemetry.ProfilingConfig{
		Enabled:        c.Profiling.Enabled,
		ServiceName:    telemetry.DefaultConfig().ServiceName,
		ServiceVersion: version,
		Endpoint:       c.Profiling.Endpoint,
		ProfileTypes:   c.Profiling.ProfileTypes,
	}
	if pc.ServiceVersion == "" {
		pc.ServiceVersion = telemetry.DefaultConfig().ServiceVersion
	}
	return pc
}

// secretEnvKeys are bound explicitly so their DAPPER_* variables apply even
// when the config file does not mention them.
var secretEnvKeys = []string{
	"radius.secret",
	"auth.radius.secret",
	"sessions.secret",
	"datastore.sql.postgres.password",
	"datastore.s3.access_key_id",
	"datastore.s3.secret_access_key",
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DAPPER_*)
//  2. Configuration file
//  3. Default values
//
// A missing file is not an error: defaults and environment apply alone.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Decode over the defaults so an explicit false or zero in the file is
	// kept rather than replaced by a default tag.
	cfg, err := newDefaulted()
	if err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dapper config init\n\n"+
				"Or specify a custom config file:\n"+
				"  dapper <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dapper config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold RADIUS and session secrets.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// InitConfig writes the default configuration to path, or to the default
// location when path is empty, and returns the path written. An existing
// file is only replaced when force is set.
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}
	if err := SaveConfig(GetDefaultConfig(), path); err != nil {
		return "", err
	}
	return path, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DAPPER_LOGGING_LEVEL=DEBUG, DAPPER_LDAP_PORT=1636
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretEnvKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/dapper/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// An explicit config file that does not exist surfaces as a PathError.
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types:
// durations, byte sizes, comma-separated lists and directory entity shorthand.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		byteSizeDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
		directory.DecodeHook(),
	)
}

// byteSizeDecodeHook converts "1MiB"-style strings and plain numbers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size: %d", v)
			}
			return bytesize.ByteSize(v), nil
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size: %d", v)
			}
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			if v < 0 {
				return nil, fmt.Errorf("negative byte size: %v", v)
			}
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration, so config files can say "30s", "5m" or "24h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds.
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dapper")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dapper")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}

// newDefaulted returns a Config with every default tag applied.
func newDefaulted() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

const redacted = "********"

// Redacted returns a copy of cfg with every secret masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Radius.Secret)
	mask(&out.Auth.Radius.Secret)
	mask(&out.Sessions.Secret)
	mask(&out.Datastore.SQL.Postgres.Password)
	mask(&out.Datastore.S3.AccessKeyID)
	mask(&out.Datastore.S3.SecretAccessKey)
	return &out
}
