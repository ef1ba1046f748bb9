package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/dapper/internal/bytesize"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences (e.g. \U -> Unicode escape), causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func withXDG(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return dir
}

// ============================================================================
// Load
// ============================================================================

func TestLoad_MinimalFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
logging:
  level: "debug"
ldap:
  port: 1390
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected normalized level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.LDAP.Port != 1390 {
		t.Errorf("Expected LDAP port 1390, got %d", cfg.LDAP.Port)
	}
	if !cfg.LDAP.Enabled {
		t.Error("Expected LDAP enabled by default")
	}
	if cfg.API.Port != 1389 {
		t.Errorf("Expected default API port 1389, got %d", cfg.API.Port)
	}
	if cfg.Auth.Provider != "internal" {
		t.Errorf("Expected default auth provider 'internal', got %q", cfg.Auth.Provider)
	}
	if cfg.Datastore.Provider != "memory" {
		t.Errorf("Expected default datastore 'memory', got %q", cfg.Datastore.Provider)
	}
	if cfg.Directory.Users.OU != "Users" || cfg.Directory.Users.PrimaryKey != "uid" {
		t.Errorf("Expected directory naming defaults, got %+v", cfg.Directory.Users)
	}
	if !cfg.Sessions.Shared || cfg.Sessions.TTL != 24*time.Hour {
		t.Errorf("Expected session defaults, got %+v", cfg.Sessions)
	}
}

func TestLoad_ExplicitFalseKept(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
ldap:
  enabled: false
sessions:
  shared: false
directory:
  allowEmpty: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.LDAP.Enabled {
		t.Error("Expected ldap.enabled=false to be kept")
	}
	if cfg.Sessions.Shared {
		t.Error("Expected sessions.shared=false to be kept")
	}
	if cfg.Directory.AllowEmpty {
		t.Error("Expected directory.allowEmpty=false to be kept")
	}
	// Untouched defaults still apply.
	if !cfg.Directory.ParseEmailToDC {
		t.Error("Expected directory.parseEmailToDC default true")
	}
}

func TestLoad_FullFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, "config.yaml", `
ldap:
  port: 10389
  max_connections: 50
  max_message_size: 64KiB
  timeouts:
    idle: 2m
  access:
    order: "allow, deny"
    allow: ["10.0.0.0/8", "192.168.0.0/16"]
radius:
  enabled: true
  port: 11812
  secret: "testing123"
  keys: "email,username"
auth:
  provider: fallback-radius
  radius:
    address: "127.0.0.1:1812"
    secret: "upstream"
    timeout: 3s
datastore:
  provider: sql
  sql:
    type: sqlite
    sqlite:
      path: "`+yamlSafePath(dir)+`/dapper.db"
sessions:
  ttl: 1h
  sync: 30s
  mfa_required: true
directory:
  posixAccounts: true
  users:
    keys: [uid, email]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LDAP.Port != 10389 || cfg.LDAP.MaxConnections != 50 {
		t.Errorf("Unexpected LDAP config: %+v", cfg.LDAP)
	}
	if cfg.LDAP.MaxMessageSize != 64*bytesize.KiB {
		t.Errorf("Expected max message size 64KiB, got %v", cfg.LDAP.MaxMessageSize)
	}
	if cfg.LDAP.Timeouts.Idle != 2*time.Minute {
		t.Errorf("Expected idle timeout 2m, got %v", cfg.LDAP.Timeouts.Idle)
	}
	if cfg.LDAP.Timeouts.Write != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", cfg.LDAP.Timeouts.Write)
	}
	if cfg.LDAP.Access.Order != "allow,deny" || len(cfg.LDAP.Access.Allow) != 2 {
		t.Errorf("Unexpected LDAP access: %+v", cfg.LDAP.Access)
	}
	if got := strings.Join(cfg.Radius.Keys, ","); got != "email,username" {
		t.Errorf("Expected radius keys from comma list, got %q", got)
	}
	if cfg.Auth.Provider != "fallback-radius" || cfg.Auth.Radius.Timeout != 3*time.Second {
		t.Errorf("Unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Auth.Radius.Retry != time.Second {
		t.Errorf("Expected default retry 1s, got %v", cfg.Auth.Radius.Retry)
	}
	if cfg.Datastore.SQL.SQLite.Path != filepath.ToSlash(dir)+"/dapper.db" {
		t.Errorf("Unexpected sqlite path %q", cfg.Datastore.SQL.SQLite.Path)
	}
	if cfg.Sessions.TTL != time.Hour || cfg.Sessions.Sync != 30*time.Second || !cfg.Sessions.MFARequired {
		t.Errorf("Unexpected sessions config: %+v", cfg.Sessions)
	}
	if !cfg.Directory.PosixAccounts || len(cfg.Directory.Users.Keys) != 2 {
		t.Errorf("Unexpected directory config: %+v", cfg.Directory)
	}
}

func TestLoad_InlineDocument(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
datastore:
  provider: memory
  data:
    domains: [dapper.test]
    organizations: [QA]
    users:
      - username: foo
        email: foo@dapper.test
        organization: QA
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	users, ok := cfg.Datastore.Data["users"].([]any)
	if !ok || len(users) != 1 {
		t.Fatalf("Expected one inline user, got %#v", cfg.Datastore.Data["users"])
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg.API.Port != 1389 {
		t.Errorf("Expected default API port 1389, got %d", cfg.API.Port)
	}
	if cfg.LDAP.Port != 389 {
		t.Errorf("Expected default LDAP port 389, got %d", cfg.LDAP.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(path); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[api]
port = 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}
	if cfg.Logging.Level != "WARN" || cfg.Logging.Format != "json" {
		t.Errorf("Unexpected logging config: %+v", cfg.Logging)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Expected API port 8080, got %d", cfg.API.Port)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DAPPER_LOGGING_LEVEL", "ERROR")
	t.Setenv("DAPPER_API_PORT", "9090")
	t.Setenv("DAPPER_RADIUS_SECRET", "from-env")

	path := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
api:
  port: 8080
radius:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Expected port 9090 from env var, got %d", cfg.API.Port)
	}
	if cfg.Radius.Secret != "from-env" {
		t.Errorf("Expected radius secret from env var, got %q", cfg.Radius.Secret)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
auth:
  provider: kerberos
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error for unknown auth provider")
	}
	if !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("Expected validation failure, got: %v", err)
	}
}

// ============================================================================
// Defaults
// ============================================================================

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Radius.Enabled {
		t.Error("Expected RADIUS disabled by default")
	}
	if cfg.Radius.Port != 1812 {
		t.Errorf("Expected default RADIUS port 1812, got %d", cfg.Radius.Port)
	}
	if strings.Join(cfg.Radius.Keys, ",") != "username,email,id" {
		t.Errorf("Unexpected default RADIUS keys %v", cfg.Radius.Keys)
	}
	if cfg.API.Cookie != "dapper-session" {
		t.Errorf("Expected default cookie 'dapper-session', got %q", cfg.API.Cookie)
	}
	if cfg.Sessions.File != "dapper.sessions.json" {
		t.Errorf("Expected default session file, got %q", cfg.Sessions.File)
	}
	if len(cfg.Telemetry.Profiling.ProfileTypes) == 0 {
		t.Error("Expected default profile types")
	}
	if cfg.Telemetry.SampleRate != 1.0 || !cfg.Telemetry.Insecure {
		t.Errorf("Unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
	if cfg.LDAP.Access.Order != "deny,allow" {
		t.Errorf("Expected normalized default access order, got %q", cfg.LDAP.Access.Order)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}

func TestApplyDefaults_LDAPTLSPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.LDAP.Port = 0
	cfg.LDAP.TLS.Cert = "cert.pem"
	cfg.LDAP.TLS.Key = "key.pem"

	ApplyDefaults(cfg)
	if cfg.LDAP.Port != 636 {
		t.Errorf("Expected LDAPS port 636, got %d", cfg.LDAP.Port)
	}
}

func TestApplyDefaults_AccessOrderOnly(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.API.Access.Order = ""
	cfg.API.Access.Allow = []string{"127.0.0.1/32"}

	ApplyDefaults(cfg)
	if cfg.API.Access.Order != "deny,allow" {
		t.Errorf("Expected default order, got %q", cfg.API.Access.Order)
	}
	if len(cfg.API.Access.Allow) != 1 {
		t.Errorf("Expected explicit allow list kept, got %v", cfg.API.Access.Allow)
	}
}

// ============================================================================
// Validation
// ============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "INVALID" }, "oneof"},
		{"InvalidLogFormat", func(c *Config) { c.Logging.Format = "xml" }, "oneof"},
		{"APIPortTooLarge", func(c *Config) { c.API.Port = 70000 }, "max"},
		{"LDAPPortNegative", func(c *Config) { c.LDAP.Port = -1 }, "min"},
		{"ZeroShutdownTimeout", func(c *Config) { c.ShutdownTimeout = 0 }, "required"},
		{"SampleRateAboveOne", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "lte"},
		{"UnknownProfileType", func(c *Config) { c.Telemetry.Profiling.ProfileTypes = []string{"heap"} }, "oneof"},
		{"UnknownAuthProvider", func(c *Config) { c.Auth.Provider = "ldap" }, "oneof"},
		{"UnknownDatastore", func(c *Config) { c.Datastore.Provider = "ldif" }, "oneof"},
		{"UnknownRadiusKey", func(c *Config) { c.Radius.Keys = []string{"phone"} }, "oneof"},
		{"ShortSessionSecret", func(c *Config) { c.Sessions.Secret = "short" }, "min"},
		{"EmptyUserKeys", func(c *Config) { c.Directory.Users.Keys = nil }, "required"},
		{"RadiusProviderNoAddress", func(c *Config) {
			c.Auth.Provider = "radius"
			c.Auth.Radius.Secret = "s"
		}, "auth.radius.address"},
		{"FallbackNoSecret", func(c *Config) {
			c.Auth.Provider = "fallback-radius"
			c.Auth.Radius.Address = "127.0.0.1:1812"
		}, "auth.radius.secret"},
		{"RadiusEnabledNoSecret", func(c *Config) { c.Radius.Enabled = true }, "radius.secret"},
		{"HalfTLS", func(c *Config) { c.LDAP.TLS.Cert = "cert.pem" }, "ldap.tls"},
		{"FileProviderNoPath", func(c *Config) { c.Datastore.Provider = "file" }, "datastore.file"},
		{"S3ProviderNoBucket", func(c *Config) { c.Datastore.Provider = "s3" }, "datastore.s3"},
		{"BadCIDR", func(c *Config) { c.LDAP.Access.Deny = []string{"10.0.0.0/99"} }, "ldap.access"},
		{"BadOrder", func(c *Config) { c.API.Access.Order = "allow" }, "api.access"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

// ============================================================================
// Paths, init and save
// ============================================================================

func TestGetDefaultConfigPath(t *testing.T) {
	dir := withXDG(t)

	path := GetDefaultConfigPath()
	if path != filepath.Join(dir, "dapper", "config.yaml") {
		t.Errorf("Unexpected default path %q", path)
	}
	if filepath.Base(GetConfigDir()) != "dapper" {
		t.Errorf("Expected directory name 'dapper', got %q", filepath.Base(GetConfigDir()))
	}
	if DefaultConfigExists() {
		t.Error("Expected no config in a fresh XDG dir")
	}
}

func TestInitConfig(t *testing.T) {
	withXDG(t)

	path, err := InitConfig("", false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !DefaultConfigExists() {
		t.Fatalf("Config file was not created at %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected 0600 permissions, got %o", perm)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	for _, section := range []string{"logging:", "ldap:", "radius:", "auth:", "directory:", "datastore:", "api:", "sessions:"} {
		if !strings.Contains(string(content), section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}

	if _, err := InitConfig("", false); err == nil {
		t.Error("Expected error when config already exists")
	}
	if _, err := InitConfig("", true); err != nil {
		t.Errorf("Expected force to overwrite, got: %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.LDAP.Port = 1636
	cfg.Radius.Enabled = true
	cfg.Radius.Secret = "testing123"
	cfg.Sessions.TTL = 2 * time.Hour
	cfg.Directory.PosixAccounts = true

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LDAP.Port != 1636 || !loaded.Radius.Enabled || loaded.Radius.Secret != "testing123" {
		t.Errorf("Round trip lost values: ldap=%+v radius=%+v", loaded.LDAP, loaded.Radius)
	}
	if loaded.Sessions.TTL != 2*time.Hour {
		t.Errorf("Expected TTL 2h, got %v", loaded.Sessions.TTL)
	}
	if !loaded.Directory.PosixAccounts {
		t.Error("Expected posixAccounts kept")
	}
	if loaded.LDAP.MaxMessageSize != bytesize.MiB {
		t.Errorf("Expected max message size 1MiB, got %v", loaded.LDAP.MaxMessageSize)
	}
}

func TestMustLoad_Missing(t *testing.T) {
	withXDG(t)

	_, err := MustLoad("")
	if err == nil || !strings.Contains(err.Error(), "dapper config init") {
		t.Errorf("Expected init hint, got: %v", err)
	}

	_, err = MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not found error, got: %v", err)
	}
}

// ============================================================================
// Telemetry conversion and schema
// ============================================================================

func TestTelemetryConversion(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.SampleRate = 0.25

	tc := cfg.Telemetry.Tracing("1.2.3")
	if !tc.Enabled || tc.SampleRate != 0.25 || tc.ServiceVersion != "1.2.3" || tc.ServiceName != "dapper" {
		t.Errorf("Unexpected tracing config: %+v", tc)
	}

	pc := cfg.Telemetry.Profiler("")
	if pc.Enabled || pc.ServiceVersion != "dev" || len(pc.ProfileTypes) == 0 {
		t.Errorf("Unexpected profiling config: %+v", pc)
	}
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		t.Fatalf("Schema is not JSON: %v", err)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("Schema has no properties: %s", data)
	}
	for _, key := range []string{"ldap", "radius", "auth", "directory", "datastore", "api", "sessions"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Schema missing %q", key)
		}
	}
}
