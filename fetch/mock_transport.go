package fetch

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"regexp"
	"sync"
)

// MockTransport is a configurable http.RoundTripper for tests. Responses
// can be stubbed by predicate or enqueued as an ordered script, which is
// the natural shape for exercising redirect chains and retry sequences.
type MockTransport struct {
	mu          sync.Mutex
	script      []scriptedReply
	stubs       []mockStub
	defaultResp *mockReply
	requests    []*http.Request
	requestHook func(*http.Request)
}

type mockStub struct {
	matcher func(*http.Request) bool
	reply   *mockReply
}

type scriptedReply struct {
	reply *mockReply
	fn    func(*http.Request) (*http.Response, error)
}

type mockReply struct {
	statusCode int
	body       string
	header     http.Header
	err        error
}

// NewMockTransport creates an empty MockTransport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// EnqueueResponse appends a scripted response. Scripted replies are
// consumed in order, one per attempt, before any stub is considered.
func (m *MockTransport) EnqueueResponse(statusCode int, body string, header http.Header) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedReply{
		reply: &mockReply{statusCode: statusCode, body: body, header: header},
	})
	return m
}

// EnqueueError appends a scripted transport error.
func (m *MockTransport) EnqueueError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedReply{reply: &mockReply{err: err}})
	return m
}

// EnqueueFunc appends a scripted reply computed from the request.
func (m *MockTransport) EnqueueFunc(fn func(*http.Request) (*http.Response, error)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scriptedReply{fn: fn})
	return m
}

// StubResponse stubs all unmatched requests to return the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = &mockReply{statusCode: statusCode, body: body}
	return m
}

// StubError stubs all unmatched requests to return the given error.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = &mockReply{err: err}
	return m
}

// StubPath stubs requests to an exact path.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubPathHeader stubs requests to an exact path with response headers,
// which redirect stubs need for Location.
func (m *MockTransport) StubPathHeader(path string, statusCode int, body string, header http.Header) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, mockStub{
		matcher: func(req *http.Request) bool { return req.URL.Path == path },
		reply:   &mockReply{statusCode: statusCode, body: body, header: header},
	})
	return m
}

// StubPathRegex stubs requests whose path matches a regular expression.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, statusCode, body)
}

// StubFunc stubs requests matching the predicate. First match wins.
func (m *MockTransport) StubFunc(matcher func(*http.Request) bool, statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, mockStub{
		matcher: matcher,
		reply:   &mockReply{statusCode: statusCode, body: body},
	})
	return m
}

// StubFuncError stubs requests matching the predicate with an error.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, mockStub{matcher: matcher, reply: &mockReply{err: err}})
	return m
}

// OnRequest sets a hook invoked for every round trip.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	hook := m.requestHook

	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		if hook != nil {
			hook(req)
		}
		if next.fn != nil {
			return next.fn(req)
		}
		return next.reply.response(req)
	}
	m.mu.Unlock()

	if hook != nil {
		hook(req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.stubs {
		if s.matcher(req) {
			return s.reply.response(req)
		}
	}
	if m.defaultResp != nil {
		return m.defaultResp.response(req)
	}

	return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
}

// Requests returns a copy of all requests made through this transport.
func (m *MockTransport) Requests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// RequestCount returns the number of round trips performed.
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil if none.
func (m *MockTransport) LastRequest() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Reset clears recorded requests, stubs and the script.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.script = nil
	m.defaultResp = nil
	m.requestHook = nil
}

// response materializes a fresh http.Response so each round trip gets an
// independently readable body.
func (r *mockReply) response(req *http.Request) (*http.Response, error) {
	if r.err != nil {
		return nil, r.err
	}
	header := make(http.Header)
	for k, vs := range r.header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	return &http.Response{
		Status:        http.StatusText(r.statusCode),
		StatusCode:    r.statusCode,
		Header:        header,
		Body:          io.NopCloser(bytes.NewBufferString(r.body)),
		ContentLength: int64(len(r.body)),
		Request:       req,
	}, nil
}
