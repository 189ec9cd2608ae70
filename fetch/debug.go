package fetch

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// logRequest logs an outgoing attempt when debug mode is on.
func logRequest(logger zerolog.Logger, req *http.Request, attempt int) {
	logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("host", req.Host).
		Int("attempt", attempt).
		Msg("HTTP request")
}

// logResponse logs a terminal response when debug mode is on.
func logResponse(logger zerolog.Logger, resp *Response) {
	logger.Debug().
		Int("status", resp.StatusCode).
		Str("status_text", resp.Status).
		Str("url", resp.URL).
		Int64("content_length", resp.ContentLength).
		Msg("HTTP response")
}

// CurlCommand renders a cURL equivalent for a descriptor, useful when
// reproducing a failing request from the command line. Streamed bodies
// are omitted.
func CurlCommand(d *Descriptor) string {
	parts := []string{"curl"}

	if d.Method != http.MethodGet {
		parts = append(parts, "-X", d.Method)
	}

	parts = append(parts, fmt.Sprintf("'%s'", d.URL.String()))

	// Headers sorted for stable output.
	keys := make([]string, 0, len(d.Header))
	for k := range d.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range d.Header[k] {
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	switch d.Body.Kind {
	case BodyBytes, BodyText, BodyForm, BodyJSON:
		body := strings.ReplaceAll(string(d.Body.data), "'", "'\\''")
		parts = append(parts, "-d", fmt.Sprintf("'%s'", body))
	}

	return strings.Join(parts, " ")
}
