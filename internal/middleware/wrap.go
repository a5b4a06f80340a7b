package middleware

import (
	"bufio"
	"net"
	"net/http"
)

// beforeWriteWriter runs a hook once, right before headers are committed.
type beforeWriteWriter struct {
	http.ResponseWriter
	before func(http.ResponseWriter)
	wrote  bool
}

func newBeforeWriteWriter(w http.ResponseWriter, before func(http.ResponseWriter)) *beforeWriteWriter {
	return &beforeWriteWriter{ResponseWriter: w, before: before}
}

func (w *beforeWriteWriter) commit() {
	if w.wrote {
		return
	}
	w.wrote = true
	if w.before != nil {
		w.before(w.ResponseWriter)
	}
}

func (w *beforeWriteWriter) WriteHeader(statusCode int) {
	w.commit()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *beforeWriteWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

// Flush keeps streamed pages working behind the session layer.
func (w *beforeWriteWriter) Flush() {
	w.commit()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *beforeWriteWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	w.wrote = true
	return hj.Hijack()
}

func (w *beforeWriteWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
