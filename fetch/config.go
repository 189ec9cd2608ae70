package fetch

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// scope is the instrumentation scope for tracing and metrics.
const scope = "github.com/halcyonlabs/fetch-go/fetch"

// Config holds transport-level settings. Use DefaultConfig() as a
// starting point and override fields as needed.
type Config struct {
	// Timeout is the default per-attempt deadline applied to requests
	// that set none. Zero means no attempt deadline.
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections across all hosts combined.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections kept per
	// host.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits total connections (idle + active) per host.
	// Zero means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection stays pooled.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake.
	//
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout is the wait for a "100 Continue" response.
	//
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// ResponseHeaderTimeout is the wait for response headers after the
	// request is fully written. Zero disables it.
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds TCP connection establishment.
	//
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive interval.
	//
	// Default: 30s
	KeepAlive time.Duration
}

// DefaultConfig returns balanced transport defaults.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
	}
}

// ConservativeConfig returns settings for memory-constrained environments
// such as serverless functions or sidecars: a small connection pool, a
// 10s default attempt deadline and short idle lifetimes.
func ConservativeConfig() Config {
	return Config{
		Timeout:               10 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
	}
}

// RateLimitConfig configures client-level rate limiting of physical
// attempts. Attempts wait for a token, respecting the request context.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained attempt rate. Zero
	// disables rate limiting.
	RequestsPerSecond float64

	// Burst is the number of attempts allowed in a burst.
	Burst int
}

// internalConfig is the resolved client configuration.
type internalConfig struct {
	httpConfig Config

	BaseURL        string
	DefaultHeaders http.Header
	UserAgent      string

	RetryPolicy    RetryPolicy
	FollowRedirect bool
	MaxRedirects   int

	RateLimit RateLimitConfig

	Transport http.RoundTripper
	TLSConfig *tls.Config

	Logger zerolog.Logger
	Debug  bool

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	Tracer  trace.Tracer
	Metrics *clientMetrics
}

// Option configures a Client.
type Option func(*internalConfig)

// newConfig creates a resolved config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		DefaultHeaders: make(http.Header),
		FollowRedirect: true,
		MaxRedirects:   DefaultMaxRedirects,
		Logger:         zerolog.Nop(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = DefaultRetryPolicy()
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Metrics = newClientMetrics(cfg.MeterProvider.Meter(scope))

	return cfg
}

// WithConfig replaces the transport-level settings wholesale.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithBaseURL sets a base URL every relative request path is joined to.
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithDefaultHeader adds a header applied to every request. Per-request
// headers with the same key win.
func WithDefaultHeader(key, value string) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultHeaders.Set(key, value)
	}
}

// WithUserAgent overrides the default user-agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *internalConfig) {
		cfg.UserAgent = ua
	}
}

// WithTransport replaces the underlying round tripper. Useful for tests
// and for sharing a tuned http.Transport between clients.
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = rt
	}
}

// WithTLSConfig sets the TLS configuration of the built-in transport.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithRetryPolicyDefault sets the client-wide retry policy. Requests can
// still override it per descriptor with WithRetryPolicy.
func WithRetryPolicyDefault(p RetryPolicy) Option {
	return func(cfg *internalConfig) {
		cfg.RetryPolicy = p
	}
}

// WithFollowRedirectDefault sets the client-wide redirect mode.
func WithFollowRedirectDefault(follow bool) Option {
	return func(cfg *internalConfig) {
		cfg.FollowRedirect = follow
	}
}

// WithMaxRedirectsDefault sets the client-wide redirect chain limit.
func WithMaxRedirectsDefault(n int) Option {
	return func(cfg *internalConfig) {
		cfg.MaxRedirects = n
	}
}

// WithDefaultTimeout sets the per-attempt deadline applied to requests
// that set none.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.Timeout = timeout
	}
}

// WithRateLimit enables client-level rate limiting of physical attempts.
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = rl
	}
}

// WithLogger sets the zerolog logger used for debug output.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
	}
}

// WithDebug enables request/response debug logging on the configured logger.
func WithDebug() Option {
	return func(cfg *internalConfig) {
		cfg.Debug = true
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}
