package fetch

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func TestDecompressResponse_Gzip(t *testing.T) {
	resp := &http.Response{
		Header:        http.Header{"Content-Encoding": {"gzip"}, "Content-Length": {"64"}},
		Body:          io.NopCloser(bytes.NewReader(gzipped(t, "compressed payload"))),
		ContentLength: 64,
	}

	decompressResponse(resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "compressed payload", string(body))

	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Empty(t, resp.Header.Get("Content-Length"))
	assert.EqualValues(t, -1, resp.ContentLength)
	assert.True(t, resp.Uncompressed)
}

func TestDecompressResponse_EmptyBody(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": {"gzip"}},
		Body:   io.NopCloser(bytes.NewReader(nil)),
	}

	decompressResponse(resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestDecompressResponse_UnknownEncodingPassesThrough(t *testing.T) {
	raw := io.NopCloser(bytes.NewReader([]byte("as is")))
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": {"zstd"}},
		Body:   raw,
	}

	decompressResponse(resp)

	assert.Equal(t, "zstd", resp.Header.Get("Content-Encoding"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "as is", string(body))
}

func TestDecompressResponse_NoEncoding(t *testing.T) {
	resp := &http.Response{
		Header: make(http.Header),
		Body:   io.NopCloser(bytes.NewReader([]byte("plain"))),
	}

	decompressResponse(resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(body))
}

func TestDecompressResponse_CorruptGzip(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": {"gzip"}},
		Body:   io.NopCloser(bytes.NewReader([]byte("definitely not gzip"))),
	}

	decompressResponse(resp)

	_, err := io.ReadAll(resp.Body)
	assert.Error(t, err)
}
