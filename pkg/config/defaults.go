package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress      = "0.0.0.0:3010"
	DefaultReadTimeout        = 30 * time.Second
	DefaultWriteTimeout       = 10 * time.Minute
	DefaultIdleTimeout        = 120 * time.Second
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMaxHeaderBytes     = 1048576  // 1MB
	DefaultMaxRequestBodySize = 10485760 // 10MB

	// CORS defaults
	DefaultCORSMaxAge = 3600

	// TLS defaults
	DefaultTLSMinVersion     = "1.2"
	DefaultTLSReloadInterval = 5 * time.Minute

	// Upstream defaults
	DefaultUpstreamBaseURL         = "https://api2.cursor.sh"
	DefaultUpstreamClientVersion   = "0.48.7"
	DefaultUpstreamTimezone        = "Asia/Shanghai"
	DefaultUpstreamConnectTimeout  = 5 * time.Second
	DefaultUpstreamReadTimeout     = 30 * time.Second
	DefaultUpstreamMetadataTimeout = 10 * time.Second

	// Credentials defaults
	DefaultInvalidFile = "data/invalid_cookies.json"

	// Limits defaults
	DefaultRequestsPerSecond = 2.0
	DefaultBurst             = 10

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Metrics defaults
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "cursorgate"

	// Tracing defaults
	DefaultTracingSampler     = "ratio"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "cursorgate"
	DefaultTracingTimeout     = 10 * time.Second
)

// DefaultModels is advertised on /v1/models when no list is configured.
var DefaultModels = []string{
	"claude-3.5-sonnet",
	"claude-3.7-sonnet",
	"claude-3.7-sonnet-thinking",
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4",
	"o3-mini",
	"cursor-small",
	"deepseek-v3",
	"deepseek-r1",
	"gemini-2.0-flash",
}

// DefaultRequestDurationBuckets is used when no buckets are configured.
var DefaultRequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0}

// ApplyDefaults fills zero-valued fields of cfg with their defaults.
// Fields that were explicitly set are left unchanged.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxRequestBodySize == 0 {
		cfg.Server.MaxRequestBodySize = DefaultMaxRequestBodySize
	}
	applyCORSDefaults(&cfg.Server.CORS)
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReloadInterval
	}

	// Upstream defaults
	if cfg.Upstream.BaseURL == "" {
		cfg.Upstream.BaseURL = DefaultUpstreamBaseURL
	}
	if cfg.Upstream.ClientVersion == "" {
		cfg.Upstream.ClientVersion = DefaultUpstreamClientVersion
	}
	if cfg.Upstream.Timezone == "" {
		cfg.Upstream.Timezone = DefaultUpstreamTimezone
	}
	if cfg.Upstream.ConnectTimeout == 0 {
		cfg.Upstream.ConnectTimeout = DefaultUpstreamConnectTimeout
	}
	if cfg.Upstream.ReadTimeout == 0 {
		cfg.Upstream.ReadTimeout = DefaultUpstreamReadTimeout
	}
	if cfg.Upstream.MetadataTimeout == 0 {
		cfg.Upstream.MetadataTimeout = DefaultUpstreamMetadataTimeout
	}

	// Credentials defaults
	if cfg.Credentials.InvalidFile == "" {
		cfg.Credentials.InvalidFile = DefaultInvalidFile
	}
	if cfg.Credentials.APIKeys == nil {
		cfg.Credentials.APIKeys = make(map[string]CookieList)
	}

	// Limits defaults
	if cfg.Limits.RequestsPerSecond == 0 {
		cfg.Limits.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Limits.Burst == 0 {
		cfg.Limits.Burst = DefaultBurst
	}

	if len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), DefaultModels...)
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Sampler == "" {
		cfg.Telemetry.Tracing.Sampler = DefaultTracingSampler
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}
}

func applyCORSDefaults(cors *CORSConfig) {
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID", "X-Cursor-Checksum"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

// MinimalConfig returns a configuration with only defaults applied.
// It is valid as-is and serves as the base for env-only deployments.
func MinimalConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
