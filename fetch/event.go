package fetch

import (
	"context"
	"net/http"
)

// EventKind identifies a lifecycle event published by the request engine.
// A logical request publishes one EventRequest per physical attempt,
// zero or more EventRedirect, and exactly one terminal event
// (EventResponse or EventError).
type EventKind int

const (
	// EventRequest fires once per physical attempt, after the outgoing
	// request has been fully assembled and before any response arrives.
	// It is always observed before the terminal event of the same attempt.
	EventRequest EventKind = iota

	// EventRedirect fires when a redirect response is about to be
	// followed. The event carries the rewritten descriptor for the next
	// attempt. The redirect response body has already been discarded.
	EventRedirect

	// EventResponse is the terminal event of a successful exchange. The
	// response body is decompressed (unless the method was HEAD) and has
	// not been read yet; ownership transfers to the consumer.
	EventResponse

	// EventError is the terminal event of a failed exchange. Err is one
	// of the taxonomy errors of this package.
	EventError

	eventKindSentinel
)

var eventKindNames = []string{
	"request",
	"redirect",
	"response",
	"error",
}

// String returns the event kind's name.
func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Event is one entry in a logical request's lifecycle stream. Only the
// fields matching Kind are set.
type Event struct {
	// Kind tags which variant this event is.
	Kind EventKind

	// Attempt is the 1-based physical attempt number the event belongs to.
	Attempt int

	// Request is the outgoing request of this attempt (EventRequest).
	Request *http.Request

	// Redirect describes the redirect about to be followed (EventRedirect).
	Redirect *Redirect

	// Response is the terminal response envelope (EventResponse). It is
	// also set on EventError when the failure carries a response, such as
	// a rejected status code in streaming mode.
	Response *Response

	// Err is the terminal failure (EventError).
	Err error
}

// Redirect describes one hop of a redirect chain.
type Redirect struct {
	// StatusCode is the status of the redirect response.
	StatusCode int

	// From is the URL that answered with the redirect.
	From string

	// To is the resolved absolute target URL.
	To string

	// Next is the descriptor the engine will use for the next attempt.
	// It differs from the previous descriptor only in its target URL.
	Next *Descriptor
}

// sendEvent delivers ev to the single subscriber, honoring cancellation.
// The unbuffered rendezvous guarantees the subscriber observed every
// earlier event before the next one is produced.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
