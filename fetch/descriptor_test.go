package fetch

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDescriptor_Defaults(t *testing.T) {
	tests := []struct {
		name       string
		opts       []RequestOption
		wantMethod string
		wantKind   BodyKind
	}{
		{
			name:       "given no body, then method defaults to GET",
			wantMethod: http.MethodGet,
			wantKind:   BodyEmpty,
		},
		{
			name:       "given a body, then method defaults to POST",
			opts:       []RequestOption{WithBody("payload")},
			wantMethod: http.MethodPost,
			wantKind:   BodyText,
		},
		{
			name:       "given explicit method, then body does not change it",
			opts:       []RequestOption{WithMethod("delete"), WithBody("payload")},
			wantMethod: http.MethodDelete,
			wantKind:   BodyText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor("http://example.com/items", tt.opts...)
			require.NoError(t, err)

			assert.Equal(t, tt.wantMethod, d.Method)
			assert.Equal(t, tt.wantKind, d.Body.Kind)
			assert.Equal(t, DefaultUserAgent, d.Header.Get("User-Agent"))
			assert.Equal(t, DefaultAcceptEncoding, d.Header.Get("Accept-Encoding"))
			assert.True(t, d.FollowRedirect)
			assert.Equal(t, DefaultMaxRedirects, d.MaxRedirects)
			assert.NotNil(t, d.RetryPolicy)
		})
	}
}

func TestNewDescriptor_InvalidURL(t *testing.T) {
	_, err := NewDescriptor("http://exa mple.com\x7f")
	assert.Error(t, err)
}

func TestWithBody_KindSelection(t *testing.T) {
	tests := []struct {
		name            string
		body            any
		wantKind        BodyKind
		wantContentType string
		wantData        string
	}{
		{
			name:            "given a string, then body is text",
			body:            "hello",
			wantKind:        BodyText,
			wantContentType: "text/plain; charset=utf-8",
			wantData:        "hello",
		},
		{
			name:            "given bytes, then body is raw",
			body:            []byte{0x1, 0x2},
			wantKind:        BodyBytes,
			wantContentType: "application/octet-stream",
			wantData:        "\x01\x02",
		},
		{
			name:            "given url.Values, then body is form encoded",
			body:            url.Values{"a": {"1"}, "b": {"2"}},
			wantKind:        BodyForm,
			wantContentType: "application/x-www-form-urlencoded",
			wantData:        "a=1&b=2",
		},
		{
			name:            "given a struct, then body is JSON encoded",
			body:            map[string]int{"n": 7},
			wantKind:        BodyJSON,
			wantContentType: "application/json",
			wantData:        `{"n":7}`,
		},
		{
			name:     "given a reader, then body is a stream",
			body:     strings.NewReader("streamed"),
			wantKind: BodyStream,
			wantData: "streamed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor("http://example.com", WithBody(tt.body))
			require.NoError(t, err)

			assert.Equal(t, tt.wantKind, d.Body.Kind)
			assert.Equal(t, tt.wantContentType, d.Header.Get("Content-Type"))

			rc, _, err := d.Body.open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantData, string(data))
		})
	}
}

func TestWithBody_JSONEncodingFailure(t *testing.T) {
	_, err := NewDescriptor("http://example.com", WithBody(make(chan int)))
	assert.Error(t, err)
}

func TestBody_StreamIsSingleUse(t *testing.T) {
	d, err := NewDescriptor("http://example.com", WithBodyStream(strings.NewReader("once")))
	require.NoError(t, err)

	rc, length, err := d.Body.open()
	require.NoError(t, err)
	assert.EqualValues(t, -1, length)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "once", string(data))

	// Second open yields no body.
	rc, length, err = d.Body.open()
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.Zero(t, length)
}

func TestBody_FactoryIsReusable(t *testing.T) {
	calls := 0
	d, err := NewDescriptor("http://example.com", WithBodyFactory(func() (io.ReadCloser, error) {
		calls++
		return io.NopCloser(strings.NewReader("fresh")), nil
	}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rc, _, err := d.Body.open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(data))
	}
	assert.Equal(t, 3, calls)
}

func TestNewDescriptor_QueryMerge(t *testing.T) {
	d, err := NewDescriptor("http://example.com/search?q=base",
		WithQuery("page", "2"),
		WithQueries(map[string]string{"limit": "10"}),
	)
	require.NoError(t, err)

	q := d.URL.Query()
	assert.Equal(t, "base", q.Get("q"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "10", q.Get("limit"))
}

func TestNewDescriptor_UnixSocketRewrite(t *testing.T) {
	d, err := NewDescriptor("http://unix:/var/run/docker.sock:/v1.41/containers/json")
	require.NoError(t, err)

	assert.Equal(t, "/var/run/docker.sock", d.SocketPath)
	assert.Equal(t, "/v1.41/containers/json", d.URL.Path)
	assert.Equal(t, "unix", d.URL.Hostname())
}

func TestDescriptor_WithTarget(t *testing.T) {
	d, err := NewDescriptor("http://example.com/a",
		WithHeader("X-Token", "abc"),
		WithRetries(1),
	)
	require.NoError(t, err)

	next, err := url.Parse("http://other.example.com/b")
	require.NoError(t, err)
	nd := d.withTarget(next)

	assert.Equal(t, "http://other.example.com/b", nd.URL.String())
	assert.Equal(t, "abc", nd.Header.Get("X-Token"))
	assert.Equal(t, d.Method, nd.Method)
	// Original descriptor is untouched.
	assert.Equal(t, "http://example.com/a", d.URL.String())
}

func TestDescriptor_HTTPRequest(t *testing.T) {
	d, err := NewDescriptor("http://example.com/upload", WithBody([]byte("rawdata")))
	require.NoError(t, err)

	req, err := d.httpRequest(t.Context())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.EqualValues(t, 7, req.ContentLength)
	assert.Equal(t, DefaultUserAgent, req.Header.Get("User-Agent"))

	// Header mutation on the request must not leak back.
	req.Header.Set("User-Agent", "other")
	assert.Equal(t, DefaultUserAgent, d.Header.Get("User-Agent"))
}

func TestBodyKind_String(t *testing.T) {
	assert.Equal(t, "empty", BodyEmpty.String())
	assert.Equal(t, "stream", BodyStream.String())
	assert.Equal(t, "unknown", BodyKind(99).String())
}
