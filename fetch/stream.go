package fetch

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// streamEventBuffer bounds the event channel handed to Duplex consumers.
// When the consumer lags, the oldest event is dropped so the engine never
// stalls behind a slow subscriber.
const streamEventBuffer = 32

// Duplex is the streaming consumption mode: a request whose response body
// is read incrementally and whose request body can be written through the
// duplex itself when no fixed body was configured on an upload method.
//
// The lifecycle still runs through the engine, so redirects and retries
// behave exactly as in buffered mode; the difference is that the terminal
// response is surfaced as soon as its headers arrive.
type Duplex struct {
	events chan Event
	ready  chan struct{}

	pw *io.PipeWriter
	pr *io.PipeReader

	once sync.Once
	resp *Response
	err  error
}

// Stream opens a request in streaming mode. The Duplex is returned
// synchronously; connection errors, retries and the terminal outcome are
// observed through Response(), Read() and Events().
//
// DecodeJSON is incompatible with streaming because there is no buffered
// body to decode; such descriptors are rejected up front.
func (c *Client) Stream(ctx context.Context, method, rawurl string, opts ...RequestOption) (*Duplex, error) {
	d, err := c.newDescriptor(method, rawurl, opts)
	if err != nil {
		return nil, err
	}
	return c.stream(ctx, d)
}

func (c *Client) stream(ctx context.Context, d *Descriptor) (*Duplex, error) {
	if d.DecodeJSON {
		return nil, ErrJSONStreaming
	}

	dx := &Duplex{
		events: make(chan Event, streamEventBuffer),
		ready:  make(chan struct{}),
	}

	// Upload methods with no configured body get a writable side. The pipe
	// reader becomes the request body; writes through the duplex feed it.
	if d.Body.Kind == BodyEmpty && isUploadMethod(d.Method) {
		pr, pw := io.Pipe()
		d.Body = &Body{Kind: BodyStream, stream: pr}
		dx.pr, dx.pw = pr, pw
	}

	go dx.consume(ctx, c, d)
	return dx, nil
}

func isUploadMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// consume drains the engine's event channel, forwarding every event to the
// duplex subscriber and resolving the terminal outcome.
func (dx *Duplex) consume(ctx context.Context, c *Client, d *Descriptor) {
	defer close(dx.events)

	terminal := false
	for ev := range c.engine.run(ctx, d) {
		switch ev.Kind {
		case EventRequest:
			if c.cfg.Debug {
				logRequest(c.cfg.Logger, ev.Request, ev.Attempt)
			}
		case EventResponse:
			terminal = true
			resp := ev.Response
			if c.cfg.Debug {
				logResponse(c.cfg.Logger, resp)
			}
			if !streamStatusOK(resp.StatusCode) {
				err := newHTTPError(effectiveDescriptor(d, resp), resp)
				dx.finish(resp, err)
				ev = Event{Kind: EventError, Attempt: ev.Attempt, Response: resp, Err: err}
			} else {
				dx.finish(resp, nil)
			}
		case EventError:
			terminal = true
			dx.finish(nil, ev.Err)
		}
		dx.emit(ev)
	}

	if !terminal {
		dx.finish(nil, newRequestError(d, context.Cause(ctx)))
	}
}

// streamStatusOK is the streaming acceptance window. Redirect statuses
// that reach a terminal event were not followable and count as failures.
func streamStatusOK(code int) bool {
	return (code >= 200 && code <= 299) || code == http.StatusNotModified
}

func (dx *Duplex) finish(resp *Response, err error) {
	dx.once.Do(func() {
		dx.resp = resp
		dx.err = err
		if err != nil && dx.pr != nil {
			// Unblock any writer stuck on the request pipe.
			dx.pr.CloseWithError(err)
		}
		close(dx.ready)
	})
}

// emit delivers an event to the subscriber channel, dropping the oldest
// pending event when the buffer is full.
func (dx *Duplex) emit(ev Event) {
	for {
		select {
		case dx.events <- ev:
			return
		default:
		}
		select {
		case <-dx.events:
		default:
		}
	}
}

// Events exposes the lifecycle events of the underlying logical request.
// The channel is closed after the terminal event.
func (dx *Duplex) Events() <-chan Event {
	return dx.events
}

// Response blocks until the terminal event and returns the response
// envelope, or the terminal error.
func (dx *Duplex) Response() (*Response, error) {
	<-dx.ready
	return dx.resp, dx.err
}

// Read streams the response body. It blocks until response headers have
// arrived; after a terminal error it returns that error.
func (dx *Duplex) Read(p []byte) (int, error) {
	<-dx.ready
	if dx.err != nil {
		return 0, dx.err
	}
	return dx.resp.Response.Body.Read(p)
}

// Write feeds the request body. It fails with ErrNotWritable when the
// request had a fixed body or a non-upload method.
func (dx *Duplex) Write(p []byte) (int, error) {
	if dx.pw == nil {
		return 0, ErrNotWritable
	}
	return dx.pw.Write(p)
}

// CloseWrite signals end of the request body. It must be called for the
// server to see EOF on a written upload.
func (dx *Duplex) CloseWrite() error {
	if dx.pw == nil {
		return ErrNotWritable
	}
	return dx.pw.Close()
}

// Close releases the duplex: the write side is closed and the response
// body, if any, is discarded.
func (dx *Duplex) Close() error {
	if dx.pw != nil {
		dx.pw.Close()
	}
	select {
	case <-dx.ready:
		if dx.resp != nil {
			return dx.resp.Response.Body.Close()
		}
	default:
	}
	return nil
}
