package fetch

import (
	"bufio"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// decompressResponse replaces the response body with a transparently
// decompressing reader, chosen by the declared Content-Encoding. Called
// for every method except HEAD. Unknown encodings pass through untouched.
func decompressResponse(resp *http.Response) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	var init func(*bufio.Reader) (io.Reader, error)
	switch encoding {
	case "gzip":
		init = func(br *bufio.Reader) (io.Reader, error) { return gzip.NewReader(br) }
	case "deflate":
		init = newDeflateReader
	case "br":
		init = func(br *bufio.Reader) (io.Reader, error) { return brotli.NewReader(br), nil }
	default:
		return
	}

	resp.Body = &decompressor{raw: resp.Body, init: init}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
}

// newDeflateReader handles both correct zlib-wrapped deflate and the raw
// deflate some servers send. The zlib header's first byte has 8 in its
// low nibble; anything else is treated as raw deflate.
func newDeflateReader(br *bufio.Reader) (io.Reader, error) {
	head, err := br.Peek(1)
	if err != nil {
		return nil, err
	}
	if head[0]&0x0f == 0x08 {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// decompressor defers constructing the decoding reader until the first
// Read. Zero-length bodies (204, HEAD-converted GET caches) would make
// eager header parsing fail even though nothing needs decoding.
type decompressor struct {
	raw  io.ReadCloser
	init func(*bufio.Reader) (io.Reader, error)

	r   io.Reader
	err error
}

func (d *decompressor) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if d.r == nil {
		br := bufio.NewReader(d.raw)
		if _, err := br.Peek(1); err == io.EOF {
			d.err = io.EOF
			return 0, io.EOF
		}
		r, err := d.init(br)
		if err != nil {
			d.err = err
			return 0, err
		}
		d.r = r
	}
	return d.r.Read(p)
}

func (d *decompressor) Close() error {
	return d.raw.Close()
}
