package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Default header values applied by NewDescriptor.
const (
	// DefaultUserAgent is sent when the caller sets no user-agent header.
	DefaultUserAgent = "fetch-go/1.0 (+https://github.com/halcyonlabs/fetch-go)"

	// DefaultAcceptEncoding advertises the content encodings the response
	// decompressor understands.
	DefaultAcceptEncoding = "gzip, deflate, br"
)

// DefaultMaxRedirects is the redirect chain limit applied when a
// descriptor does not override it.
const DefaultMaxRedirects = 10

// BodyKind tags the variant of a request body. The kind is decided once,
// when the descriptor is built, never by probing the body value at send
// time.
type BodyKind int

const (
	// BodyEmpty means the request carries no body.
	BodyEmpty BodyKind = iota

	// BodyBytes is a fixed byte payload.
	BodyBytes

	// BodyText is a fixed text payload.
	BodyText

	// BodyForm is a form-encoded payload.
	BodyForm

	// BodyJSON is a JSON-encoded payload.
	BodyJSON

	// BodyMultipart is a multipart/form-data stream with a boundary fixed
	// at build time. Multipart bodies are re-creatable: each physical
	// attempt streams a fresh copy.
	BodyMultipart

	// BodyStream is a caller-supplied reader. It is single-use: if a
	// retry or redirect happens after the stream was consumed, the next
	// attempt sends no body.
	BodyStream

	// BodyFactory is a caller-supplied source of fresh readers, one per
	// physical attempt.
	BodyFactory
)

var bodyKindNames = []string{
	"empty", "bytes", "text", "form", "json", "multipart", "stream", "factory",
}

// String returns the body kind's name.
func (k BodyKind) String() string {
	if k < 0 || int(k) >= len(bodyKindNames) {
		return "unknown"
	}
	return bodyKindNames[k]
}

// Body is the request payload of a Descriptor.
type Body struct {
	// Kind tags the variant. The remaining fields are set per kind.
	Kind BodyKind

	data        []byte
	stream      io.Reader
	factory     func() (io.ReadCloser, error)
	boundary    string
	contentType string
	consumed    bool
}

func emptyBody() *Body { return &Body{Kind: BodyEmpty} }

// fixed reports whether the payload was fully known at build time.
func (b *Body) fixed() bool {
	switch b.Kind {
	case BodyBytes, BodyText, BodyForm, BodyJSON:
		return true
	default:
		return false
	}
}

// open yields the reader for one physical attempt, with the content
// length when known (-1 otherwise). A consumed BodyStream yields no body.
func (b *Body) open() (io.ReadCloser, int64, error) {
	switch b.Kind {
	case BodyEmpty:
		return nil, 0, nil
	case BodyBytes, BodyText, BodyForm, BodyJSON:
		return io.NopCloser(bytes.NewReader(b.data)), int64(len(b.data)), nil
	case BodyStream:
		if b.consumed {
			return nil, 0, nil
		}
		b.consumed = true
		if rc, ok := b.stream.(io.ReadCloser); ok {
			return rc, -1, nil
		}
		return io.NopCloser(b.stream), -1, nil
	case BodyMultipart, BodyFactory:
		rc, err := b.factory()
		if err != nil {
			return nil, 0, err
		}
		return rc, -1, nil
	default:
		return nil, 0, fmt.Errorf("fetch: unknown body kind %d", b.Kind)
	}
}

// Descriptor is a canonical, fully-resolved request configuration.
// Build one with NewDescriptor (or implicitly through the Client verb
// helpers) and treat it as immutable afterwards; the engine never mutates
// a descriptor, it derives rewritten copies when following redirects.
type Descriptor struct {
	// URL is the merged target (scheme, host, path, query).
	URL *url.URL

	// Method is the HTTP method, defaulted to GET (no body) or POST
	// (body present) when the caller sets none.
	Method string

	// Header holds the request headers, unique per key.
	Header http.Header

	// Body is the tagged request payload.
	Body *Body

	// FollowRedirect enables following redirect responses for GET and HEAD.
	FollowRedirect bool

	// MaxRedirects caps the redirect chain.
	MaxRedirects int

	// RetryPolicy decides re-attempts on transport errors.
	RetryPolicy RetryPolicy

	// Timeout bounds each physical attempt. Zero means no attempt deadline.
	Timeout time.Duration

	// DecodeJSON asks the buffered adapter to parse the body as JSON.
	DecodeJSON bool

	// RawBytes suppresses all body post-processing; the buffered adapter
	// yields raw bytes only.
	RawBytes bool

	// SocketPath is set when the host is the literal "unix"; the request
	// is then dialed over the Unix domain socket at this path.
	SocketPath string

	methodSet   bool
	buildErr    error
	queries     url.Values
	formFields  map[string]string
	fileUploads []FileUpload
}

// RequestOption customizes a single descriptor.
type RequestOption func(*Descriptor)

// NewDescriptor parses the target URL, applies the options and fills in
// the documented defaults.
func NewDescriptor(rawurl string, opts ...RequestOption) (*Descriptor, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url %q: %w", rawurl, err)
	}

	d := &Descriptor{
		URL:            u,
		Header:         make(http.Header),
		Body:           emptyBody(),
		FollowRedirect: true,
		MaxRedirects:   DefaultMaxRedirects,
	}

	for _, opt := range opts {
		opt(d)
	}
	if d.buildErr != nil {
		return nil, d.buildErr
	}

	if len(d.fileUploads) > 0 || (len(d.formFields) > 0 && d.Body.Kind == BodyEmpty) {
		body, err := multipartBody(d.fileUploads, d.formFields)
		if err != nil {
			return nil, err
		}
		d.Body = body
	}

	d.mergeQueries()
	d.rewriteUnixSocket()
	d.applyDefaults()

	return d, nil
}

// mergeQueries folds WithQuery values into the URL's query string.
func (d *Descriptor) mergeQueries() {
	if len(d.queries) == 0 {
		return
	}
	q := d.URL.Query()
	for k, vs := range d.queries {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	d.URL.RawQuery = q.Encode()
	d.queries = nil
}

// rewriteUnixSocket splits "http://unix:/socket/path:/request/path" into
// a socket path and a request path.
func (d *Descriptor) rewriteUnixSocket() {
	if d.URL.Hostname() != "unix" {
		return
	}
	sock, path, ok := strings.Cut(d.URL.Path, ":")
	if !ok {
		return
	}
	d.SocketPath = sock
	d.URL.Path = path
	d.URL.Host = "unix"
}

func (d *Descriptor) applyDefaults() {
	if !d.methodSet {
		if d.Body.Kind == BodyEmpty {
			d.Method = http.MethodGet
		} else {
			d.Method = http.MethodPost
		}
	}
	d.Method = strings.ToUpper(d.Method)

	if d.Header.Get("User-Agent") == "" {
		d.Header.Set("User-Agent", DefaultUserAgent)
	}
	if d.Header.Get("Accept-Encoding") == "" {
		d.Header.Set("Accept-Encoding", DefaultAcceptEncoding)
	}
	if d.Body.contentType != "" && d.Header.Get("Content-Type") == "" {
		d.Header.Set("Content-Type", d.Body.contentType)
	}
	if d.RetryPolicy == nil {
		d.RetryPolicy = DefaultRetryPolicy()
	}
}

// withTarget derives the descriptor for the next redirect hop. Everything
// except the target URL is reused unchanged.
func (d *Descriptor) withTarget(u *url.URL) *Descriptor {
	next := *d
	next.URL = u
	next.SocketPath = ""
	next.rewriteUnixSocket()
	return &next
}

// httpRequest assembles the outgoing request for one physical attempt.
func (d *Descriptor) httpRequest(ctx context.Context) (*http.Request, error) {
	body, contentLength, err := d.Body.open()
	if err != nil {
		return nil, err
	}

	target := d.URL
	if d.SocketPath != "" {
		// The transport dials the socket; the URL only names the path.
		t := *d.URL
		t.Host = "unix"
		target = &t
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = d.Header.Clone()
	if contentLength >= 0 {
		req.ContentLength = contentLength
	} else {
		req.ContentLength = -1
	}
	return req, nil
}

// WithMethod overrides the HTTP method.
func WithMethod(method string) RequestOption {
	return func(d *Descriptor) {
		d.Method = method
		d.methodSet = true
	}
}

// WithHeader sets a single request header.
func WithHeader(key, value string) RequestOption {
	return func(d *Descriptor) {
		d.Header.Set(key, value)
	}
}

// WithHeaders sets multiple request headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(d *Descriptor) {
		for k, v := range headers {
			d.Header.Set(k, v)
		}
	}
}

// WithQuery adds a single query parameter.
func WithQuery(key, value string) RequestOption {
	return func(d *Descriptor) {
		if d.queries == nil {
			d.queries = make(url.Values)
		}
		d.queries.Add(key, value)
	}
}

// WithQueries adds multiple query parameters.
func WithQueries(params map[string]string) RequestOption {
	return func(d *Descriptor) {
		if d.queries == nil {
			d.queries = make(url.Values)
		}
		for k, v := range params {
			d.queries.Set(k, v)
		}
	}
}

// WithBody sets the request body with automatic kind selection.
//
// Encoding rules:
//   - string: text (Content-Type: text/plain)
//   - []byte: raw bytes (Content-Type: application/octet-stream)
//   - url.Values: form encoded (Content-Type: application/x-www-form-urlencoded)
//   - io.Reader: single-use stream
//   - anything else: JSON (Content-Type: application/json)
func WithBody(v any) RequestOption {
	return func(d *Descriptor) {
		if v == nil {
			return
		}
		switch body := v.(type) {
		case string:
			d.Body = &Body{Kind: BodyText, data: []byte(body), contentType: "text/plain; charset=utf-8"}
		case []byte:
			d.Body = &Body{Kind: BodyBytes, data: body, contentType: "application/octet-stream"}
		case url.Values:
			d.Body = &Body{Kind: BodyForm, data: []byte(body.Encode()), contentType: "application/x-www-form-urlencoded"}
		case io.Reader:
			d.Body = &Body{Kind: BodyStream, stream: body}
		default:
			data, err := json.Marshal(v)
			if err != nil {
				d.buildErr = fmt.Errorf("fetch: encoding JSON body: %w", err)
				return
			}
			d.Body = &Body{Kind: BodyJSON, data: data, contentType: "application/json"}
		}
	}
}

// WithJSON encodes v as the JSON request body regardless of its type.
func WithJSON(v any) RequestOption {
	return func(d *Descriptor) {
		data, err := json.Marshal(v)
		if err != nil {
			d.buildErr = fmt.Errorf("fetch: encoding JSON body: %w", err)
			return
		}
		d.Body = &Body{Kind: BodyJSON, data: data, contentType: "application/json"}
	}
}

// WithForm sets form data as the request body.
func WithForm(data map[string]string) RequestOption {
	return func(d *Descriptor) {
		values := make(url.Values, len(data))
		for k, v := range data {
			values.Set(k, v)
		}
		d.Body = &Body{Kind: BodyForm, data: []byte(values.Encode()), contentType: "application/x-www-form-urlencoded"}
	}
}

// WithBodyStream sets a single-use reader as the request body.
//
// The stream is consumed by the first physical attempt. If the engine
// retries after the stream was consumed, the re-attempt sends no body;
// use WithBodyFactory when retry-with-body matters.
func WithBodyStream(r io.Reader) RequestOption {
	return func(d *Descriptor) {
		d.Body = &Body{Kind: BodyStream, stream: r}
	}
}

// WithBodyFactory sets a re-creatable body source. The factory is invoked
// once per physical attempt, so retried and redirected attempts resend a
// complete body.
func WithBodyFactory(f func() (io.ReadCloser, error)) RequestOption {
	return func(d *Descriptor) {
		d.Body = &Body{Kind: BodyFactory, factory: f}
	}
}

// DecodeJSON asks the buffered adapter to parse the response body as JSON.
func DecodeJSON() RequestOption {
	return func(d *Descriptor) {
		d.DecodeJSON = true
	}
}

// RawBytes yields the raw response bytes without any decoding.
func RawBytes() RequestOption {
	return func(d *Descriptor) {
		d.RawBytes = true
	}
}

// WithTimeout bounds each physical attempt. Exceeding the deadline is a
// transport-level error and goes through the retry policy like any other
// connection failure.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(d *Descriptor) {
		d.Timeout = timeout
	}
}

// WithRetryPolicy overrides the retry policy for this request.
func WithRetryPolicy(p RetryPolicy) RequestOption {
	return func(d *Descriptor) {
		d.RetryPolicy = p
	}
}

// WithRetries overrides the re-attempt budget, keeping the default
// exponential backoff and classifier.
func WithRetries(retries uint) RequestOption {
	return func(d *Descriptor) {
		d.RetryPolicy = RetryPolicyWithLimit(retries)
	}
}

// WithFollowRedirect toggles redirect following.
func WithFollowRedirect(follow bool) RequestOption {
	return func(d *Descriptor) {
		d.FollowRedirect = follow
	}
}

// WithMaxRedirects overrides the redirect chain limit.
func WithMaxRedirects(n int) RequestOption {
	return func(d *Descriptor) {
		d.MaxRedirects = n
	}
}
