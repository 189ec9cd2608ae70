package fetch

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrJSONStreaming is returned synchronously by Client.Stream when the
// request asks for JSON decoding. JSON mode requires buffering the full
// body and is incompatible with raw streaming.
var ErrJSONStreaming = errors.New("fetch: DecodeJSON cannot be combined with streaming")

// ErrNotWritable is returned by Duplex.Write when the request body was
// fixed at construction time, or when the request method carries no payload.
var ErrNotWritable = errors.New("fetch: duplex is not writable")

// RequestTarget identifies the request a failure belongs to. It reflects
// the descriptor in effect at failure time, so after a redirect it names
// the redirected target, not the original URL.
type RequestTarget struct {
	// Host is the host component including the port, if any.
	Host string

	// Hostname is the host component without the port.
	Hostname string

	// Method is the HTTP method of the failed attempt.
	Method string

	// Path is the URL path including the raw query, if any.
	Path string

	// Protocol is the URL scheme ("http" or "https").
	Protocol string

	// URL is the full target URL.
	URL string
}

func targetOf(d *Descriptor) RequestTarget {
	path := d.URL.Path
	if d.URL.RawQuery != "" {
		path += "?" + d.URL.RawQuery
	}
	return RequestTarget{
		Host:     d.URL.Host,
		Hostname: d.URL.Hostname(),
		Method:   d.Method,
		Path:     path,
		Protocol: d.URL.Scheme,
		URL:      d.URL.String(),
	}
}

// UnsupportedProtocolError is returned when the descriptor's URL scheme is
// neither http nor https. No connection attempt is made.
type UnsupportedProtocolError struct {
	RequestTarget
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("fetch: unsupported protocol %q: only http and https are supported", e.Protocol)
}

func newUnsupportedProtocolError(d *Descriptor) *UnsupportedProtocolError {
	return &UnsupportedProtocolError{RequestTarget: targetOf(d)}
}

// RequestError is returned when a transport-level failure (connection
// refused, reset, DNS failure, attempt timeout) exhausts the retry budget.
type RequestError struct {
	RequestTarget

	// Code is the symbolic name of the underlying syscall error, when one
	// can be identified (for example "ECONNREFUSED"). Empty otherwise.
	Code string

	cause error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("fetch: request to %s failed: %v", e.URL, e.cause)
}

func (e *RequestError) Unwrap() error { return e.cause }

func newRequestError(d *Descriptor, cause error) *RequestError {
	return &RequestError{
		RequestTarget: targetOf(d),
		Code:          errorCode(cause),
		cause:         cause,
	}
}

// ReadError is returned when draining the response body fails.
type ReadError struct {
	RequestTarget

	cause error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("fetch: reading response from %s failed: %v", e.URL, e.cause)
}

func (e *ReadError) Unwrap() error { return e.cause }

func newReadError(d *Descriptor, cause error) *ReadError {
	return &ReadError{RequestTarget: targetOf(d), cause: cause}
}

// parseSnippetLen is how many leading raw body bytes a ParseError retains
// for diagnostics.
const parseSnippetLen = 77

// ParseError is returned when JSON decoding of the response body fails.
// Snippet holds the first bytes of the raw body for diagnostics.
type ParseError struct {
	RequestTarget

	StatusCode    int
	StatusMessage string
	Snippet       []byte

	cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("fetch: %v in %q: %q", e.cause, e.URL, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.cause }

func newParseError(d *Descriptor, resp *Response, body []byte, cause error) *ParseError {
	snippet := body
	if len(snippet) > parseSnippetLen {
		snippet = snippet[:parseSnippetLen]
	}
	return &ParseError{
		RequestTarget: targetOf(d),
		StatusCode:    resp.StatusCode,
		StatusMessage: statusMessage(resp),
		Snippet:       snippet,
		cause:         cause,
	}
}

// HTTPError is returned when the final status code falls outside the
// acceptance window. Response carries the envelope built so far, including
// any drained body, for inspection.
type HTTPError struct {
	RequestTarget

	StatusCode    int
	StatusMessage string
	Response      *Response
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch: response code %d (%s)", e.StatusCode, e.StatusMessage)
}

func newHTTPError(d *Descriptor, resp *Response) *HTTPError {
	return &HTTPError{
		RequestTarget: targetOf(d),
		StatusCode:    resp.StatusCode,
		StatusMessage: statusMessage(resp),
		Response:      resp,
	}
}

// MaxRedirectsError is returned when a redirect chain exceeds the
// descriptor's redirect limit. StatusCode is the status of the redirect
// response that broke the limit.
type MaxRedirectsError struct {
	RequestTarget

	StatusCode    int
	StatusMessage string
}

func (e *MaxRedirectsError) Error() string {
	return fmt.Sprintf("fetch: redirect limit exceeded for %s (last status %d)", e.URL, e.StatusCode)
}

// errorCode maps well-known transport errors to their symbolic names.
func errorCode(err error) string {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, syscall.ECONNABORTED):
		return "ECONNABORTED"
	case errors.Is(err, syscall.ETIMEDOUT):
		return "ETIMEDOUT"
	case errors.Is(err, syscall.ENETUNREACH):
		return "ENETUNREACH"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "EHOSTUNREACH"
	case errors.Is(err, syscall.EPIPE):
		return "EPIPE"
	default:
		return ""
	}
}
