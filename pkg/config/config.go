package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for cursorgate.
// It contains the HTTP server, the upstream vendor endpoint, the credential
// pool, rate limits, the advertised model list, and telemetry settings.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and request limits.
	Server ServerConfig `yaml:"server"`

	// Upstream contains the vendor endpoint configuration and the opaque
	// session values sent with every upstream call.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Credentials contains the API key pool and the invalid cookie file.
	Credentials CredentialsConfig `yaml:"credentials"`

	// Limits contains per-API-key rate limiting configuration.
	Limits LimitsConfig `yaml:"limits"`

	// Models is the list of model names advertised on /v1/models.
	Models []string `yaml:"models"`

	// Telemetry contains configuration for logging, metrics, and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "0.0.0.0:3010"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Streaming responses are bounded by this value, so it is
	// much larger than the read timeout.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum size of request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxRequestBodySize limits inbound request bodies.
	// Default: 10485760 (10MB)
	MaxRequestBodySize int64 `yaml:"max_request_body_size"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`

	// TLS terminates HTTPS on the listener.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS termination configuration.
type TLSConfig struct {
	// Enabled serves HTTPS instead of plain HTTP.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM certificate chain. Required when enabled.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM private key. Required when enabled.
	KeyFile string `yaml:"key_file"`

	// MinVersion is the oldest accepted protocol version, "1.2" or "1.3".
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the certificate files are checked for
	// changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// CORSConfig contains CORS (Cross-Origin Resource Sharing) configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are written.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins.
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods is a list of allowed HTTP methods.
	// Default: ["GET", "POST", "OPTIONS"]
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders is a list of allowed request headers.
	// Default: ["Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-Cursor-Checksum"]
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// UpstreamConfig contains configuration for the vendor streaming endpoint.
type UpstreamConfig struct {
	// BaseURL is the vendor API root.
	// Default: "https://api2.cursor.sh"
	BaseURL string `yaml:"base_url"`

	// ClientVersion is sent as x-cursor-client-version.
	// Default: "0.48.7"
	ClientVersion string `yaml:"client_version"`

	// Timezone is sent as x-cursor-timezone.
	// Default: "Asia/Shanghai"
	Timezone string `yaml:"timezone"`

	// GhostMode is sent as x-ghost-mode.
	// Default: true
	GhostMode *bool `yaml:"ghost_mode"`

	// Checksum overrides the generated x-cursor-checksum for every request
	// that does not carry its own header.
	Checksum string `yaml:"checksum"`

	// ConnectTimeout bounds dialing plus waiting for response headers on
	// the chat call.
	// Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReadTimeout bounds the wait for each chunk of the chat response body.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// MetadataTimeout bounds the best-effort model listing call.
	// Default: 10s
	MetadataTimeout time.Duration `yaml:"metadata_timeout"`

	// Compress gzips the chat request envelope.
	// Default: false
	Compress bool `yaml:"compress"`
}

// CredentialsConfig contains configuration for the API key pool.
type CredentialsConfig struct {
	// APIKeys maps each issued API key to one or more upstream cookies.
	// A value may be a single string or a list of strings.
	APIKeys map[string]CookieList `yaml:"api_keys"`

	// InvalidFile is the JSON array of cookies rejected upstream.
	// Default: "data/invalid_cookies.json"
	InvalidFile string `yaml:"invalid_file"`

	// Watch reloads the invalid file when another process changes it.
	// Default: true
	Watch *bool `yaml:"watch"`

	// RotateSchedule is a cron expression for periodic pool rotation.
	// Empty disables scheduled rotation.
	RotateSchedule string `yaml:"rotate_schedule"`

	// UsageDB is a SQLite file recording per-key usage. Empty disables it.
	UsageDB string `yaml:"usage_db"`
}

// LimitsConfig contains per-API-key rate limiting configuration.
type LimitsConfig struct {
	// Enabled turns rate limiting on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// RequestsPerSecond is the sustained request rate per API key.
	// Default: 2
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the bucket size per API key.
	// Default: 10
	Burst int `yaml:"burst"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "cursorgate"
	Namespace string `yaml:"namespace"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Sampler determines the sampling strategy.
	// Options: "always", "never", "ratio"
	// Default: "ratio"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// ServiceName is the service name in traces.
	// Default: "cursorgate"
	ServiceName string `yaml:"service_name"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure"`

	// Timeout is the timeout for OTLP exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// CookieList holds the cookies issued for one API key. In YAML and JSON it
// may be written as a single string or as a list of strings.
type CookieList []string

// UnmarshalYAML accepts a scalar or a sequence.
func (c *CookieList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*c = CookieList{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*c = list
		return nil
	default:
		return fmt.Errorf("line %d: cookie must be a string or a list of strings", value.Line)
	}
}

// UnmarshalJSON accepts a string or an array of strings.
func (c *CookieList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*c = CookieList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("cookie must be a string or an array of strings: %w", err)
	}
	*c = list
	return nil
}

// GhostModeEnabled reports the effective x-ghost-mode value.
func (u UpstreamConfig) GhostModeEnabled() bool {
	return u.GhostMode == nil || *u.GhostMode
}

// WatchEnabled reports whether the invalid file should be watched.
func (c CredentialsConfig) WatchEnabled() bool {
	return c.Watch == nil || *c.Watch
}

// MetricsEnabled reports whether metrics collection is active.
func (m MetricsConfig) MetricsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Pool flattens the configured API keys into a plain map.
func (c CredentialsConfig) Pool() map[string][]string {
	pool := make(map[string][]string, len(c.APIKeys))
	for key, cookies := range c.APIKeys {
		pool[key] = append([]string(nil), cookies...)
	}
	return pool
}
