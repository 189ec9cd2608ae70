package fetch

import (
	"context"
	"net"
	"net/http"
	"sync"
)

// buildTransport creates an http.Transport from the configuration.
// Compression is always disabled: accept-encoding negotiation and
// response decompression are this package's job, driven by the declared
// Content-Encoding header rather than transport capability detection.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:   hc.DialTimeout,
		KeepAlive: hc.KeepAlive,
	}

	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       hc.MaxConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.TLSHandshakeTimeout,
		ExpectContinueTimeout: hc.ExpectContinueTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		DisableCompression:    true,
		TLSClientConfig:       cfg.TLSConfig,
		Proxy:                 http.ProxyFromEnvironment,
	}
}

// unixTransports caches one transport per Unix socket path.
type unixTransports struct {
	mu         sync.Mutex
	transports map[string]*http.Transport
}

// get returns the transport dialing the given socket path.
func (u *unixTransports) get(socketPath string) http.RoundTripper {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.transports == nil {
		u.transports = make(map[string]*http.Transport)
	}
	if t, ok := u.transports[socketPath]; ok {
		return t
	}

	t := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		DisableCompression: true,
	}
	u.transports[socketPath] = t
	return t
}
