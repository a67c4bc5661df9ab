// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to fetch a remote asset.
type ProxyRequest struct {
	Ctx context.Context
	URL string // raw value of the url query parameter
}

// ProxyResponse represents the upstream response to be streamed back.
// Body is never fully materialized; the caller relays it and must close it.
type ProxyResponse struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64 // -1 when unknown
	Body          io.ReadCloser
}

// HasBody reports whether the upstream response carries any body bytes.
func (r *ProxyResponse) HasBody() bool {
	return r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}
