package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// StreamScript describes one scripted response of the mock stream server.
type StreamScript struct {
	// Status is the HTTP status to answer with; 0 means 200.
	Status int
	// Body is the raw stream body. It is written line by line.
	Body string
	// LineDelay inserts a pause before each line, to exercise idle handling.
	LineDelay time.Duration
	// DropAfter, when > 0, aborts the connection after that many lines,
	// simulating a network failure mid-stream.
	DropAfter int
}

// RecordedRequest captures what one request carried.
type RecordedRequest struct {
	Header http.Header
	Body   []byte
}

// StreamServer serves scripted stream responses. Requests consume the
// scripts in order; once exhausted, the last script repeats. Every request's
// headers and body are recorded for assertions.
type StreamServer struct {
	*httptest.Server

	mu       sync.Mutex
	scripts  []StreamScript
	next     int
	requests []RecordedRequest
}

// NewStreamServer starts a mock stream server with the given scripts.
func NewStreamServer(t *testing.T, scripts ...StreamScript) *StreamServer {
	t.Helper()
	if len(scripts) == 0 {
		t.Fatal("NewStreamServer needs at least one script")
	}

	s := &StreamServer{scripts: scripts}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *StreamServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Header: r.Header.Clone(),
		Body:   body,
	})
	script := s.scripts[s.next]
	if s.next < len(s.scripts)-1 {
		s.next++
	}
	s.mu.Unlock()

	status := script.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if status != http.StatusOK {
		return
	}

	flusher, _ := w.(http.Flusher)
	lines := strings.Split(strings.TrimRight(script.Body, "\n"), "\n")
	for i, line := range lines {
		if script.DropAfter > 0 && i >= script.DropAfter {
			// Abort the connection so the client sees a read error, not EOF.
			panic(http.ErrAbortHandler)
		}
		if script.LineDelay > 0 {
			time.Sleep(script.LineDelay)
		}
		_, _ = io.WriteString(w, line+"\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Requests returns all recorded requests so far.
func (s *StreamServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestCount returns how many requests arrived.
func (s *StreamServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
