package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// An empty path yields the defaults, which is how env-only deployments run.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CURSORGATE_SECTION_FIELD (e.g., CURSORGATE_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Besides the CURSORGATE_ variables it honors the variables older deployments
// were configured with: PORT, API_KEYS and x-cursor-checksum.
func applyEnvOverrides(cfg *Config) error {
	// Server overrides
	if val := os.Getenv("PORT"); val != "" {
		cfg.Server.ListenAddress = "0.0.0.0:" + val
	}
	if val := os.Getenv("CURSORGATE_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	setDuration("CURSORGATE_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	setDuration("CURSORGATE_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	setBool("CURSORGATE_SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	setBool("CURSORGATE_SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	if val := os.Getenv("CURSORGATE_SERVER_TLS_CERT_FILE"); val != "" {
		cfg.Server.TLS.CertFile = val
	}
	if val := os.Getenv("CURSORGATE_SERVER_TLS_KEY_FILE"); val != "" {
		cfg.Server.TLS.KeyFile = val
	}

	// Upstream overrides
	if val := os.Getenv("CURSORGATE_UPSTREAM_BASE_URL"); val != "" {
		cfg.Upstream.BaseURL = val
	}
	if val := os.Getenv("CURSORGATE_UPSTREAM_CLIENT_VERSION"); val != "" {
		cfg.Upstream.ClientVersion = val
	}
	if val := os.Getenv("CURSORGATE_UPSTREAM_TIMEZONE"); val != "" {
		cfg.Upstream.Timezone = val
	}
	for _, name := range []string{"x-cursor-checksum", "CURSOR_CHECKSUM", "CURSORGATE_UPSTREAM_CHECKSUM"} {
		if val := os.Getenv(name); val != "" {
			cfg.Upstream.Checksum = val
		}
	}
	setDuration("CURSORGATE_UPSTREAM_CONNECT_TIMEOUT", &cfg.Upstream.ConnectTimeout)
	setDuration("CURSORGATE_UPSTREAM_READ_TIMEOUT", &cfg.Upstream.ReadTimeout)
	setBool("CURSORGATE_UPSTREAM_COMPRESS", &cfg.Upstream.Compress)

	// Credentials overrides
	if val := os.Getenv("API_KEYS"); val != "" {
		var keys map[string]CookieList
		if err := json.Unmarshal([]byte(val), &keys); err != nil {
			return fmt.Errorf("failed to parse API_KEYS: %w", err)
		}
		if cfg.Credentials.APIKeys == nil {
			cfg.Credentials.APIKeys = make(map[string]CookieList, len(keys))
		}
		for k, v := range keys {
			cfg.Credentials.APIKeys[k] = v
		}
	}
	if val := os.Getenv("CURSORGATE_CREDENTIALS_INVALID_FILE"); val != "" {
		cfg.Credentials.InvalidFile = val
	}
	if val := os.Getenv("CURSORGATE_CREDENTIALS_ROTATE_SCHEDULE"); val != "" {
		cfg.Credentials.RotateSchedule = val
	}
	if val := os.Getenv("CURSORGATE_CREDENTIALS_USAGE_DB"); val != "" {
		cfg.Credentials.UsageDB = val
	}
	if val := os.Getenv("CURSORGATE_CREDENTIALS_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Credentials.Watch = &b
		}
	}

	// Limits overrides
	setBool("CURSORGATE_LIMITS_ENABLED", &cfg.Limits.Enabled)
	if val := os.Getenv("CURSORGATE_LIMITS_REQUESTS_PER_SECOND"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Limits.RequestsPerSecond = f
		}
	}
	if val := os.Getenv("CURSORGATE_LIMITS_BURST"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Limits.Burst = n
		}
	}

	if val := os.Getenv("CURSORGATE_MODELS"); val != "" {
		cfg.Models = splitList(val)
	}

	// Telemetry overrides
	if val := os.Getenv("CURSORGATE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CURSORGATE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("CURSORGATE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	setBool("CURSORGATE_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	if val := os.Getenv("CURSORGATE_TELEMETRY_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
	}

	return nil
}

func setDuration(name string, dst *time.Duration) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("ignoring invalid duration override", "variable", name, "value", val)
		return
	}
	*dst = d
}

func setBool(name string, dst *bool) {
	val := os.Getenv(name)
	if val == "" {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("ignoring invalid boolean override", "variable", name, "value", val)
		return
	}
	*dst = b
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
