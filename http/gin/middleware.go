// Package gin adapts the payment gate to Gin. It is a thin bridge that feeds
// the rest of the Gin handler chain through the stdlib middleware, so all
// verification, settlement, and refund logic lives in one place.
package gin

import (
	"bufio"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	httpx402 "github.com/caasxyz/x402-echo-merchant/http"
)

// Middleware returns a Gin middleware enforcing the gate's payment policy.
// Handlers behind it can read the verification result with
// httpx402.PaymentFromContext on the request context.
func Middleware(g *httpx402.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Writer = &responseWriter{ResponseWriter: w}
			c.Next()
		})
		g.Middleware(next).ServeHTTP(c.Writer, c.Request)
		c.Abort()
	}
}

// responseWriter dresses a plain http.ResponseWriter up as a gin.ResponseWriter
// so the gate's buffering writer can stand in for Gin's.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *responseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *responseWriter) WriteHeaderNow() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
}

func (w *responseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *responseWriter) Size() int {
	return w.size
}

func (w *responseWriter) Written() bool {
	return w.status != 0 || w.size > 0
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// neverNotifies backs CloseNotify when the underlying writer cannot report
// disconnects. The channel never fires: without a disconnect signal the
// request is treated as connected until the handler returns. Callers that
// select on it must carry their own timeout or context case.
var neverNotifies = make(chan bool)

func (w *responseWriter) CloseNotify() <-chan bool {
	if cn, ok := w.ResponseWriter.(http.CloseNotifier); ok {
		return cn.CloseNotify()
	}
	return neverNotifies
}

func (w *responseWriter) Pusher() http.Pusher {
	if p, ok := w.ResponseWriter.(http.Pusher); ok {
		return p
	}
	return nil
}
