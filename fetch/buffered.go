package fetch

import (
	"context"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
)

// Do runs a fully built Descriptor in buffered mode: the engine drives
// redirects and retries, the whole body is read into memory, JSON is
// decoded when requested, and the status code is checked against the
// acceptance window. The terminal outcome of the lifecycle maps directly
// onto the return values.
func (c *Client) Do(ctx context.Context, d *Descriptor) (*Response, error) {
	for ev := range c.engine.run(ctx, d) {
		switch ev.Kind {
		case EventRequest:
			if c.cfg.Debug {
				logRequest(c.cfg.Logger, ev.Request, ev.Attempt)
			}
		case EventResponse:
			if c.cfg.Debug {
				logResponse(c.cfg.Logger, ev.Response)
			}
			return c.finish(d, ev.Response)
		case EventError:
			return nil, ev.Err
		}
	}
	// The engine closed the channel without a terminal event, which only
	// happens when the caller's context ended mid-flight.
	return nil, newRequestError(d, ctx.Err())
}

// finish post-processes a terminal response: drain the body, decode JSON
// if asked for, and enforce the status window. Redirect statuses count as
// failures when redirect following is on, because a 3xx that survived the
// engine was either a non-followable method or lacked a Location header.
func (c *Client) finish(d *Descriptor, resp *Response) (*Response, error) {
	eff := effectiveDescriptor(d, resp)

	body, err := resp.Body()
	if err != nil {
		return resp, newReadError(eff, err)
	}

	if d.DecodeJSON && !d.RawBytes && len(body) > 0 {
		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return resp, newParseError(eff, resp, body, err)
		}
		resp.jsonBody = decoded
	}

	upper := 399
	if d.FollowRedirect {
		upper = 299
	}
	code := resp.StatusCode
	if (code >= 200 && code <= upper) || code == http.StatusNotModified {
		return resp, nil
	}
	return resp, newHTTPError(eff, resp)
}

// effectiveDescriptor rewrites d to the response's final URL so error
// targets name the descriptor in effect at failure time, which after a
// redirect chain is the redirected target.
func effectiveDescriptor(d *Descriptor, resp *Response) *Descriptor {
	if resp.URL == d.URL.String() {
		return d
	}
	u, err := url.Parse(resp.URL)
	if err != nil {
		return d
	}
	return d.withTarget(u)
}
