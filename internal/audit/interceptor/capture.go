package interceptor

import (
	"bytes"
	"io"
	"net/http"

	"github.com/felixge/httpsnoop"
)

// responseCapture observes the status and the leading bytes of a response
// body through httpsnoop hooks, preserving the optional interfaces
// (Flusher, Hijacker, ReaderFrom) of the wrapped writer.
type responseCapture struct {
	status      int
	wroteHeader bool
	limit       int
	body        bytes.Buffer
}

func newResponseCapture(limit int) *responseCapture {
	return &responseCapture{limit: limit}
}

func (c *responseCapture) wrap(w http.ResponseWriter) http.ResponseWriter {
	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				c.markHeader(code)
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				c.markHeader(http.StatusOK)
				c.record(b)
				return next(b)
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				c.markHeader(http.StatusOK)
				return next(src)
			}
		},
	})
}

func (c *responseCapture) markHeader(code int) {
	// 1xx responses are interim; the final status follows.
	if c.wroteHeader || code < http.StatusOK {
		return
	}
	c.status = code
	c.wroteHeader = true
}

func (c *responseCapture) record(b []byte) {
	room := c.limit - c.body.Len()
	if room <= 0 {
		return
	}
	if len(b) > room {
		b = b[:room]
	}
	c.body.Write(b)
}

// StatusCode is the final status, 200 when the handler never wrote one.
func (c *responseCapture) StatusCode() int {
	if !c.wroteHeader {
		return http.StatusOK
	}
	return c.status
}

// Payload returns the captured body prefix.
func (c *responseCapture) Payload() []byte {
	return c.body.Bytes()
}
