package fetch

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// Response is the envelope produced once per logical request. It wraps
// the final http.Response with the URL bookkeeping the engine maintains
// across redirects, and caches the drained body.
type Response struct {
	// Response embeds the final http.Response. All its fields and methods
	// are accessible directly (r.StatusCode, r.Header, ...). The body
	// stream is already decompressed unless the request method was HEAD.
	*http.Response

	// URL is the final target URL after redirects.
	URL string

	// RequestURL is the original URL the logical request started with.
	RequestURL string

	// body caches the drained response body.
	body []byte

	bodyRead bool

	// jsonBody holds the decoded value when DecodeJSON was requested.
	jsonBody any
}

// Body drains, closes and caches the response body. Subsequent calls
// return the cached bytes.
func (r *Response) Body() ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}

	defer r.Response.Body.Close()
	body, err := io.ReadAll(r.Response.Body)
	if err != nil {
		return nil, err
	}

	r.body = body
	r.bodyRead = true
	return r.body, nil
}

// String returns the response body as a string.
func (r *Response) String() (string, error) {
	body, err := r.Body()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// JSON returns the decoded body when the request asked for DecodeJSON,
// nil otherwise.
func (r *Response) JSON() any {
	return r.jsonBody
}

// JSONInto unmarshals the (cached) body into v.
func (r *Response) JSONInto(v any) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError reports whether the status code is 4xx or 5xx.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// statusMessage returns the reason phrase for a response, falling back to
// the standard text when the transport did not preserve one.
func statusMessage(resp *Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}
