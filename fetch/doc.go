// Package fetch is an ergonomic HTTP request layer built on top of the
// standard net/http transport.
//
// # Features
//
//   - Automatic redirect following with a hard chain limit
//   - Retries on transient network failure with exponential backoff and jitter
//   - Transparent response decompression (gzip, deflate, brotli)
//   - Buffered results with JSON decoding and status validation
//   - A streaming duplex for request/response body streaming
//   - Lifecycle events (request, redirect, response, error) per logical request
//   - OpenTelemetry tracing and metrics, zerolog debug logging
//
// # Quick Start
//
// Buffered mode resolves to a single Response:
//
//	client := fetch.New(
//	    fetch.WithBaseURL("https://api.example.com"),
//	)
//
//	resp, err := client.Get(ctx, "/users", fetch.DecodeJSON())
//	if err != nil {
//	    return err
//	}
//	var users []User
//	if err := resp.JSONInto(&users); err != nil {
//	    return err
//	}
//
// POST with an encoded body:
//
//	resp, err := client.Post(ctx, "/users", fetch.WithJSON(user))
//
// # Streaming
//
// Streaming mode returns a duplex immediately. Its writable side feeds the
// outgoing request body and its readable side yields the (decompressed)
// response body:
//
//	dx, err := client.StreamPost(ctx, "/upload")
//	if err != nil {
//	    return err
//	}
//	io.Copy(dx, file)
//	dx.CloseWrite()
//	io.Copy(out, dx)
//
// # Retries and redirects
//
// A logical request may span several physical attempts. Transport-level
// errors (connection refused, reset, DNS failure, attempt timeout) are
// retried according to the request's RetryPolicy; redirect responses are
// followed for GET and HEAD up to a configurable limit. Redirects never
// consume retry budget. Every logical request terminates in exactly one
// response or exactly one error from the closed taxonomy in this package.
//
// # Errors
//
// All failures surface as one of the typed errors UnsupportedProtocolError,
// RequestError, ReadError, ParseError, HTTPError or MaxRedirectsError, each
// carrying the method, URL, host and path in effect at failure time. Use
// errors.As to inspect them:
//
//	var httpErr *fetch.HTTPError
//	if errors.As(err, &httpErr) {
//	    log.Printf("status %d from %s", httpErr.StatusCode, httpErr.URL)
//	}
package fetch
