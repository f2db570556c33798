package core

import (
	"net/http"
	"sync"
)

// trackingWriter records whether a hook answered the request and detaches
// the underlying writer once the phase is over, so a hook that outlived its
// deadline cannot write to a finished response.
type trackingWriter struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	wrote  bool
	closed bool
}

func newTrackingWriter(w http.ResponseWriter) *trackingWriter {
	return &trackingWriter{w: w}
}

func (t *trackingWriter) Header() http.Header {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.w == nil {
		return http.Header{}
	}
	return t.w.Header()
}

func (t *trackingWriter) WriteHeader(status int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.w == nil {
		return
	}
	t.wrote = true
	t.w.WriteHeader(status)
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.w == nil {
		return 0, http.ErrHandlerTimeout
	}
	t.wrote = true
	return t.w.Write(p)
}

func (t *trackingWriter) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.w == nil {
		return
	}
	if flusher, ok := t.w.(http.Flusher); ok {
		t.wrote = true
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer while the
// phase is open. Once closed it returns nil and the controller reports
// http.ErrNotSupported.
func (t *trackingWriter) Unwrap() http.ResponseWriter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	return t.w
}

func (t *trackingWriter) Responded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wrote
}

func (t *trackingWriter) close() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return t.wrote
}
