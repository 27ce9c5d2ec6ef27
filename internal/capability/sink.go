package capability

import (
	"net/http"
)

// Sink is the response a direct-stream capability writes into.
type Sink interface {
	Header() http.Header
	WriteHeader(status int)
	Write(p []byte) (int, error)
	// Committed reports whether the status line or any byte was sent.
	Committed() bool
}

// mediaHeaders are the headers a direct-stream capability sets before its
// first write.
var mediaHeaders = []string{"Content-Disposition", "Content-Type", "Content-Length"}

// ResetHeaders drops the media headers left behind by an attempt that failed
// before committing. It does nothing once the response is committed.
func ResetHeaders(s Sink) {
	if s.Committed() {
		return
	}
	h := s.Header()
	for _, name := range mediaHeaders {
		h.Del(name)
	}
}

// ResponseSink adapts an http.ResponseWriter into a Sink.
type ResponseSink struct {
	w         http.ResponseWriter
	committed bool
	written   int64
}

// NewResponseSink wraps w.
func NewResponseSink(w http.ResponseWriter) *ResponseSink {
	return &ResponseSink{w: w}
}

func (s *ResponseSink) Header() http.Header {
	return s.w.Header()
}

func (s *ResponseSink) WriteHeader(status int) {
	if s.committed {
		return
	}
	s.committed = true
	s.w.WriteHeader(status)
}

func (s *ResponseSink) Write(p []byte) (int, error) {
	if !s.committed {
		s.WriteHeader(http.StatusOK)
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

// Flush sends buffered data to the client when the writer supports it.
func (s *ResponseSink) Flush() {
	if f, ok := s.w.(http.Flusher); ok {
		s.committed = true
		f.Flush()
	}
}

func (s *ResponseSink) Committed() bool {
	return s.committed
}

// Written returns the number of body bytes sent.
func (s *ResponseSink) Written() int64 {
	return s.written
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *ResponseSink) Unwrap() http.ResponseWriter {
	return s.w
}
