package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// engine drives one logical request per run call: it issues physical
// attempts, follows redirects, retries transport errors and publishes
// lifecycle events to a single subscriber. Exactly one terminal event
// (response or error) is delivered per run, then the channel closes.
type engine struct {
	transport http.RoundTripper
	unix      unixTransports
	limiter   *rate.Limiter
	logger    zerolog.Logger
	tracer    trace.Tracer
	metrics   *clientMetrics
}

// attemptState is the per-logical-request bookkeeping threaded through
// the attempt loop. Counters are never shared across logical requests.
type attemptState struct {
	// desc is the descriptor in effect for the current attempt. It
	// diverges from the original after a redirect rewrites the target.
	desc *Descriptor

	// attempt is the 1-based physical attempt number.
	attempt int

	// redirectCount is the number of redirect hops followed so far.
	redirectCount int

	// retryCount is the number of re-attempts after transport errors.
	retryCount int

	// originalURL is preserved across redirects for reporting.
	originalURL string
}

// run starts the attempt loop and returns its event stream. The channel
// is unbuffered: each event must be consumed before the engine proceeds,
// which guarantees the request event is observed before the terminal
// event of the same attempt.
func (e *engine) run(ctx context.Context, d *Descriptor) <-chan Event {
	events := make(chan Event)
	go e.drive(ctx, d, events)
	return events
}

func (e *engine) drive(ctx context.Context, d *Descriptor, events chan<- Event) {
	defer close(events)

	requestID := uuid.NewString()
	logger := e.logger.With().
		Str("request_id", requestID).
		Str("method", d.Method).
		Str("url", d.URL.String()).
		Logger()

	ctx, span := e.tracer.Start(ctx, "HTTP "+d.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", d.Method),
			attribute.String("url.full", d.URL.String()),
			attribute.String("http.request.id", requestID),
		),
	)
	defer span.End()

	st := &attemptState{desc: d, originalURL: d.URL.String()}
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("http.request.method", d.Method)}

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.recordAttempts(ctx, st.attempt, attrs...)
		e.metrics.recordDuration(ctx, time.Since(start), attrs...)
		logger.Debug().Err(err).Int("attempts", st.attempt).Msg("request failed")
		sendEvent(ctx, events, Event{Kind: EventError, Attempt: st.attempt, Err: err})
	}

	for {
		st.attempt++

		if s := st.desc.URL.Scheme; s != "http" && s != "https" {
			fail(newUnsupportedProtocolError(st.desc))
			return
		}

		resp, err := e.oneAttempt(ctx, st, events)
		if err == errSubscriberGone {
			return
		}

		if err != nil {
			retryAttempt := st.retryCount + 1
			delay, retry := st.desc.RetryPolicy(retryAttempt, err)
			if !retry {
				if st.retryCount > 0 {
					e.metrics.recordRetryExhausted(ctx, attrs...)
				}
				fail(newRequestError(st.desc, err))
				return
			}

			st.retryCount++
			e.metrics.recordRetry(ctx, attrs...)
			span.AddEvent("http.retry", trace.WithAttributes(
				attribute.Int("retry.attempt", retryAttempt),
				attribute.Int64("retry.delay_ms", delay.Milliseconds()),
			))
			logger.Debug().Err(err).
				Int("retry", retryAttempt).
				Dur("delay", delay).
				Msg("retrying after transport error")

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				fail(newRequestError(st.desc, ctx.Err()))
				return
			}
		}

		target, ok := redirectTarget(st.desc, resp)
		if ok {
			// The redirect response body is discarded before re-attempting.
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			st.redirectCount++
			if st.redirectCount > st.desc.MaxRedirects {
				fail(&MaxRedirectsError{
					RequestTarget: targetOf(st.desc),
					StatusCode:    resp.StatusCode,
					StatusMessage: resp.Status,
				})
				return
			}

			// The Location value is resolved byte-for-byte as received;
			// net/http never re-encodes header bytes, so servers emitting
			// non-UTF8 locations still resolve.
			next, err := st.desc.URL.Parse(target)
			if err != nil {
				fail(newRequestError(st.desc, err))
				return
			}

			nd := st.desc.withTarget(next)
			e.metrics.recordRedirect(ctx, attrs...)
			span.AddEvent("http.redirect", trace.WithAttributes(
				attribute.Int("http.response.status_code", resp.StatusCode),
				attribute.String("url.redirect", next.String()),
			))
			logger.Debug().
				Int("status", resp.StatusCode).
				Str("location", next.String()).
				Int("redirects", st.redirectCount).
				Msg("following redirect")

			if !sendEvent(ctx, events, Event{
				Kind:    EventRedirect,
				Attempt: st.attempt,
				Redirect: &Redirect{
					StatusCode: resp.StatusCode,
					From:       st.desc.URL.String(),
					To:         next.String(),
					Next:       nd,
				},
			}) {
				return
			}
			st.desc = nd
			continue
		}

		if st.desc.Method != http.MethodHead {
			decompressResponse(resp)
		}

		envelope := &Response{
			Response:   resp,
			URL:        st.desc.URL.String(),
			RequestURL: st.originalURL,
		}

		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		e.metrics.recordAttempts(ctx, st.attempt, attrs...)
		e.metrics.recordDuration(ctx, time.Since(start), attrs...)
		logger.Debug().
			Int("status", resp.StatusCode).
			Int("attempts", st.attempt).
			Msg("response received")

		if !sendEvent(ctx, events, Event{Kind: EventResponse, Attempt: st.attempt, Response: envelope}) {
			// Nobody took ownership of the body; release the connection
			// and the armed attempt deadline.
			resp.Body.Close()
		}
		return
	}
}

// errSubscriberGone signals that the event subscriber stopped consuming
// (its context ended); the run is abandoned without a terminal event.
var errSubscriberGone = &subscriberGoneError{}

type subscriberGoneError struct{}

func (*subscriberGoneError) Error() string { return "fetch: event subscriber gone" }

// oneAttempt performs a single physical attempt: rate-limit wait, request
// assembly, the request event, and the transport round trip. A returned
// response has its per-attempt cancelation bound to its body.
func (e *engine) oneAttempt(ctx context.Context, st *attemptState, events chan<- Event) (*http.Response, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := st.desc.httpRequest(ctx)
	if err != nil {
		return nil, err
	}

	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if st.desc.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, st.desc.Timeout)
	}
	req = req.WithContext(attemptCtx)

	if !sendEvent(ctx, events, Event{Kind: EventRequest, Attempt: st.attempt, Request: req}) {
		cancel()
		return nil, errSubscriberGone
	}

	resp, err := e.roundTripper(st.desc).RoundTrip(req)
	if err != nil {
		cancel()
		return nil, err
	}

	// The attempt deadline must stay armed until the body is consumed.
	resp.Body = &cancelBody{body: resp.Body, cancel: cancel}
	return resp, nil
}

// roundTripper selects the transport for a descriptor, switching to a
// Unix-socket dialer when the descriptor names one.
func (e *engine) roundTripper(d *Descriptor) http.RoundTripper {
	if d.SocketPath != "" {
		return e.unix.get(d.SocketPath)
	}
	return e.transport
}

// redirectStatusCodes are the status codes whose semantics instruct the
// client to re-issue the request at a new location. 304 is excluded: it
// is an acceptance code, not a hop.
func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMultipleChoices,
		http.StatusMovedPermanently,
		http.StatusFound,
		http.StatusSeeOther,
		http.StatusUseProxy,
		http.StatusTemporaryRedirect,
		http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// redirectTarget reports whether the response should be followed, and to
// where. Only GET and HEAD requests follow redirects.
func redirectTarget(d *Descriptor, resp *http.Response) (string, bool) {
	if !isRedirectStatus(resp.StatusCode) || !d.FollowRedirect {
		return "", false
	}
	if d.Method != http.MethodGet && d.Method != http.MethodHead {
		return "", false
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", false
	}
	return loc, true
}

// cancelBody releases the per-attempt deadline when the response body is
// closed, so a configured Timeout cannot kill a body read that already
// has its headers.
type cancelBody struct {
	body   io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Read(p []byte) (int, error) {
	return b.body.Read(p)
}

func (b *cancelBody) Close() error {
	err := b.body.Close()
	b.cancel()
	return err
}
