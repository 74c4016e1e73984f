package idempotency

import (
	"bytes"
	"maps"
	"net/http"
)

// captureWriter buffers a handler's response so it can be stored before reaching the client.
type captureWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(code int) {
	if c.code == 0 && code > 0 {
		c.code = code
	}
}

func (c *captureWriter) Write(p []byte) (int, error) {
	c.WriteHeader(http.StatusOK)
	return c.body.Write(p)
}

func (c *captureWriter) status() int {
	if c.code == 0 {
		return http.StatusOK
	}
	return c.code
}

func (c *captureWriter) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	clear(dst)
	maps.Copy(dst, c.header)
	w.WriteHeader(c.status())
	if c.body.Len() > 0 {
		_, _ = w.Write(c.body.Bytes())
	}
}
