package fetch

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// Client is the entry point of the request layer. It owns the transport,
// the client-wide defaults and the request engine, and exposes one helper
// per HTTP verb for each consumption mode.
//
// Create a Client with New():
//
//	client := fetch.New(
//	    fetch.WithBaseURL("https://api.example.com"),
//	    fetch.WithRetryPolicyDefault(fetch.RetryPolicyWithLimit(3)),
//	)
//
//	resp, err := client.Get(ctx, "/users", fetch.DecodeJSON())
//
// A Client is safe for concurrent use; every logical request gets its own
// attempt state.
type Client struct {
	cfg    *internalConfig
	engine *engine
}

// New creates a Client with production-ready defaults: pooled transport,
// redirect following, two retries with exponential backoff and jitter,
// and OpenTelemetry instrumentation from the global providers.
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	transport := cfg.Transport
	if transport == nil {
		transport = cfg.buildTransport()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		burst := cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), burst)
	}

	return &Client{
		cfg: cfg,
		engine: &engine{
			transport: transport,
			limiter:   limiter,
			logger:    cfg.Logger,
			tracer:    cfg.Tracer,
			metrics:   cfg.Metrics,
		},
	}
}

// Transport returns the underlying round tripper for advanced use cases.
func (c *Client) Transport() http.RoundTripper {
	return c.engine.transport
}

// Get issues a buffered GET request.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, url, opts)
}

// Post issues a buffered POST request.
func (c *Client) Post(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, url, opts)
}

// Put issues a buffered PUT request.
func (c *Client) Put(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, url, opts)
}

// Patch issues a buffered PATCH request.
func (c *Client) Patch(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPatch, url, opts)
}

// Head issues a buffered HEAD request.
func (c *Client) Head(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodHead, url, opts)
}

// Delete issues a buffered DELETE request.
func (c *Client) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, url, opts)
}

// StreamGet opens a streaming GET request.
func (c *Client) StreamGet(ctx context.Context, url string, opts ...RequestOption) (*Duplex, error) {
	return c.Stream(ctx, http.MethodGet, url, opts...)
}

// StreamPost opens a streaming POST request.
func (c *Client) StreamPost(ctx context.Context, url string, opts ...RequestOption) (*Duplex, error) {
	return c.Stream(ctx, http.MethodPost, url, opts...)
}

// StreamPut opens a streaming PUT request.
func (c *Client) StreamPut(ctx context.Context, url string, opts ...RequestOption) (*Duplex, error) {
	return c.Stream(ctx, http.MethodPut, url, opts...)
}

// StreamPatch opens a streaming PATCH request.
func (c *Client) StreamPatch(ctx context.Context, url string, opts ...RequestOption) (*Duplex, error) {
	return c.Stream(ctx, http.MethodPatch, url, opts...)
}

// StreamHead opens a streaming HEAD request.
func (c *Client) StreamHead(ctx context.Context, url string, opts ...RequestOption) (*Duplex, error) {
	return c.Stream(ctx, http.MethodHead, url, opts...)
}

// StreamDelete opens a streaming DELETE request.
func (c *Client) StreamDelete(ctx context.Context, url string, opts ...RequestOption) (*Duplex, error) {
	return c.Stream(ctx, http.MethodDelete, url, opts...)
}

func (c *Client) do(ctx context.Context, method, rawurl string, opts []RequestOption) (*Response, error) {
	d, err := c.newDescriptor(method, rawurl, opts)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, d)
}

// newDescriptor resolves the URL against the base URL and merges the
// client defaults under the per-request options.
func (c *Client) newDescriptor(method, rawurl string, opts []RequestOption) (*Descriptor, error) {
	merged := make([]RequestOption, 0, len(opts)+8)
	merged = append(merged,
		WithRetryPolicy(c.cfg.RetryPolicy),
		WithFollowRedirect(c.cfg.FollowRedirect),
		WithMaxRedirects(c.cfg.MaxRedirects),
	)
	if c.cfg.httpConfig.Timeout > 0 {
		merged = append(merged, WithTimeout(c.cfg.httpConfig.Timeout))
	}
	for k, vs := range c.cfg.DefaultHeaders {
		for _, v := range vs {
			merged = append(merged, WithHeader(k, v))
		}
	}
	if c.cfg.UserAgent != "" {
		merged = append(merged, WithHeader("User-Agent", c.cfg.UserAgent))
	}
	merged = append(merged, opts...)
	if method != "" {
		merged = append(merged, WithMethod(method))
	}

	return NewDescriptor(c.joinBaseURL(rawurl), merged...)
}

// joinBaseURL joins a request path to the client's base URL. Absolute
// URLs pass through untouched.
func (c *Client) joinBaseURL(rawurl string) string {
	if c.cfg.BaseURL == "" || strings.Contains(rawurl, "://") {
		return rawurl
	}
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(rawurl, "/")
}
