package fetch

import (
	"compress/flate"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, "hello world")
	}))
	defer srv.Close()

	c := New()
	resp, err := c.Get(t.Context(), srv.URL)
	require.NoError(t, err)

	body, err := resp.String()
	require.NoError(t, err)
	assert.Equal(t, "hello world", body)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, srv.URL, resp.RequestURL)
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		io.Copy(w, r.Body)
	}))
	defer srv.Close()

	c := New()
	resp, err := c.Post(t.Context(), srv.URL,
		WithJSON(map[string]int{"a": 1}),
		DecodeJSON(),
	)
	require.NoError(t, err)

	decoded, ok := resp.JSON().(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, decoded["a"])

	var typed struct {
		A int `json:"a"`
	}
	require.NoError(t, resp.JSONInto(&typed))
	assert.Equal(t, 1, typed.A)
}

func TestClient_StatusWindow(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		follow   bool
		wantErr  bool
		wantHTTP bool
	}{
		{name: "given 200, then accepted", status: 200, follow: true},
		{name: "given 204, then accepted", status: 204, follow: true},
		{name: "given 304, then accepted", status: 304, follow: true},
		{name: "given 404, then rejected", status: 404, follow: true, wantErr: true, wantHTTP: true},
		{name: "given 500, then rejected", status: 500, follow: true, wantErr: true, wantHTTP: true},
		{
			name:   "given unfollowable 302 while following, then rejected",
			status: 302, follow: true, wantErr: true, wantHTTP: true,
		},
		{
			name:   "given 302 with following disabled, then accepted",
			status: 302, follow: false,
		},
		{
			name:   "given 400 with following disabled, then rejected",
			status: 400, follow: false, wantErr: true, wantHTTP: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No Location header, so the 302 is never followed but still
			// lands in the status check.
			mock := NewMockTransport().StubResponse(tt.status, "")
			c := New(WithTransport(mock))

			resp, err := c.Get(t.Context(), "http://api.test/x",
				WithFollowRedirect(tt.follow))

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.status, resp.StatusCode)
				return
			}
			require.Error(t, err)
			if tt.wantHTTP {
				var httpErr *HTTPError
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, tt.status, httpErr.StatusCode)
				assert.NotNil(t, httpErr.Response)
			}
		})
	}
}

func TestClient_RedirectThenSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New()
	resp, err := c.Get(t.Context(), srv.URL+"/old")
	require.NoError(t, err)

	body, err := resp.String()
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, srv.URL+"/new", resp.URL)
	assert.Equal(t, srv.URL+"/old", resp.RequestURL)
}

func TestClient_ParseError(t *testing.T) {
	payload := "<!DOCTYPE html>" + strings.Repeat("x", 200)
	mock := NewMockTransport().StubResponse(http.StatusOK, payload)
	c := New(WithTransport(mock))

	resp, err := c.Get(t.Context(), "http://api.test/broken", DecodeJSON())
	require.Error(t, err)
	require.NotNil(t, resp)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, http.StatusOK, parseErr.StatusCode)
	assert.Len(t, parseErr.Snippet, 77)
	assert.Equal(t, payload[:77], string(parseErr.Snippet))
}

func TestClient_RawBytesSkipsDecoding(t *testing.T) {
	mock := NewMockTransport().StubResponse(http.StatusOK, "not json at all")
	c := New(WithTransport(mock))

	resp, err := c.Get(t.Context(), "http://api.test/raw", DecodeJSON(), RawBytes())
	require.NoError(t, err)

	body, err := resp.Body()
	require.NoError(t, err)
	assert.Equal(t, "not json at all", string(body))
	assert.Nil(t, resp.JSON())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("mid-stream failure") }
func (failingReader) Close() error             { return nil }

func TestClient_ReadError(t *testing.T) {
	mock := NewMockTransport().EnqueueFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     make(http.Header),
			Body:       failingReader{},
			Request:    req,
		}, nil
	})
	c := New(WithTransport(mock))

	resp, err := c.Get(t.Context(), "http://api.test/cut")
	require.Error(t, err)
	require.NotNil(t, resp)

	var readErr *ReadError
	assert.ErrorAs(t, err, &readErr)
}

func TestClient_Decompression(t *testing.T) {
	const payload = "the quick brown fox jumps over the lazy dog"

	tests := []struct {
		name     string
		encoding string
		compress func(io.Writer) io.WriteCloser
	}{
		{
			name:     "given gzip encoding, then body is decompressed",
			encoding: "gzip",
			compress: func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) },
		},
		{
			name:     "given zlib deflate encoding, then body is decompressed",
			encoding: "deflate",
			compress: func(w io.Writer) io.WriteCloser { return zlib.NewWriter(w) },
		},
		{
			name:     "given raw deflate encoding, then body is decompressed",
			encoding: "deflate",
			compress: func(w io.Writer) io.WriteCloser {
				fw, _ := flate.NewWriter(w, flate.DefaultCompression)
				return fw
			},
		},
		{
			name:     "given brotli encoding, then body is decompressed",
			encoding: "br",
			compress: func(w io.Writer) io.WriteCloser { return brotli.NewWriter(w) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, DefaultAcceptEncoding, r.Header.Get("Accept-Encoding"))
				w.Header().Set("Content-Encoding", tt.encoding)
				cw := tt.compress(w)
				cw.Write([]byte(payload))
				cw.Close()
			}))
			defer srv.Close()

			c := New()
			resp, err := c.Get(t.Context(), srv.URL)
			require.NoError(t, err)

			body, err := resp.String()
			require.NoError(t, err)
			assert.Equal(t, payload, body)
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
		})
	}
}

func TestClient_FormPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fmt.Fprint(w, r.PostForm.Get("name"))
	}))
	defer srv.Close()

	c := New()
	resp, err := c.Post(t.Context(), srv.URL, WithForm(map[string]string{"name": "gopher"}))
	require.NoError(t, err)

	body, err := resp.String()
	require.NoError(t, err)
	assert.Equal(t, "gopher", body)
}

func TestClient_BodyFactoryResendsOnRetry(t *testing.T) {
	attempt := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt++
		body, _ := io.ReadAll(r.Body)
		if attempt == 1 {
			// Kill the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	c := New()
	resp, err := c.Post(t.Context(), srv.URL,
		WithBodyFactory(func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("resend me")), nil
		}),
		WithRetryPolicy(immediateRetry(2)),
	)
	require.NoError(t, err)

	body, err := resp.String()
	require.NoError(t, err)
	assert.Equal(t, "resend me", body)
	assert.Equal(t, 2, attempt)
}
