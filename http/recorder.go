package http

import (
	"bytes"
	"net/http"
)

// responseRecorder buffers the handler's response so the gate can decide, after
// the handler finishes, whether to settle and what to merge into the body.
// Buffering trades streaming support for that control; gated demo responses
// are small.
type responseRecorder struct {
	headers     http.Header
	body        bytes.Buffer
	statusCode  int
	wroteHeader bool
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{headers: make(http.Header)}
}

func (rr *responseRecorder) Header() http.Header {
	return rr.headers
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	return rr.body.Write(b)
}

func (rr *responseRecorder) WriteHeader(statusCode int) {
	if rr.wroteHeader {
		return
	}
	rr.statusCode = statusCode
	rr.wroteHeader = true
}

func (rr *responseRecorder) status() int {
	if !rr.wroteHeader {
		return http.StatusOK
	}
	return rr.statusCode
}

func (rr *responseRecorder) header() http.Header {
	return rr.headers
}

func (rr *responseRecorder) bodyBytes() []byte {
	return rr.body.Bytes()
}

func (rr *responseRecorder) setBody(b []byte) {
	rr.body.Reset()
	rr.body.Write(b)
}

// flushTo replays the buffered response onto the real writer.
func (rr *responseRecorder) flushTo(w http.ResponseWriter) {
	for key, values := range rr.headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(rr.status())
	w.Write(rr.body.Bytes())
}
