package types

import (
	"net/http"

	"github.com/valyala/fasthttp"
)

// FastResponseWriter lets net/http handlers such as promhttp write into a
// fasthttp response.
type FastResponseWriter struct {
	ctx        *fasthttp.RequestCtx
	header     http.Header
	statusCode int
	written    bool
}

func NewFastResponseWriter(ctx *fasthttp.RequestCtx) *FastResponseWriter {
	return &FastResponseWriter{
		ctx:        ctx,
		header:     make(http.Header),
		statusCode: http.StatusOK,
	}
}

func (frw *FastResponseWriter) Header() http.Header {
	return frw.header
}

func (frw *FastResponseWriter) Write(data []byte) (int, error) {
	if !frw.written {
		frw.WriteHeader(http.StatusOK)
	}
	return frw.ctx.Write(data)
}

func (frw *FastResponseWriter) WriteHeader(statusCode int) {
	if frw.written {
		return
	}
	frw.written = true
	frw.statusCode = statusCode

	for key, values := range frw.header {
		for i, value := range values {
			if i == 0 {
				frw.ctx.Response.Header.Set(key, value)
			} else {
				frw.ctx.Response.Header.Add(key, value)
			}
		}
	}
	frw.ctx.SetStatusCode(statusCode)
}

func (frw *FastResponseWriter) StatusCode() int {
	return frw.statusCode
}
