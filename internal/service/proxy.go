// Package service implements the image proxy fetch policy.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"asset-proxy/internal/client"
	"asset-proxy/internal/config"
	"asset-proxy/internal/model"
)

var (
	// ErrMissingURL is returned when the url query parameter is absent or empty.
	ErrMissingURL = errors.New("url required")

	// ErrInvalidURL is returned when the target is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("url must be an absolute http or https URL")
)

// Fixed upstream request headers. Callers cannot influence them.
const (
	upstreamUserAgent = "Mozilla/5.0"
	upstreamAccept    = "image/*"
)

// Response header policy for proxied assets.
const (
	fallbackContentType = "application/octet-stream"
	cacheControl        = "public, max-age=60"
)

// passthroughResponseHeaders are the upstream response headers relayed as-is.
// Content-Type, CORS and caching headers are always rewritten.
var passthroughResponseHeaders = []string{
	"Content-Length",
	"Etag",
	"Last-Modified",
}

// ProxyService validates proxy targets and shapes upstream responses.
type ProxyService struct {
	client *client.FetchClient
	cfg    *config.Config
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.FetchClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "proxy_service"),
	}
}

// Fetch validates the requested URL, performs the upstream GET and returns the
// response with its headers rewritten for the client. The body is returned
// unread; the caller is responsible for relaying and closing it.
//
// Upstream non-2xx statuses are not errors: they are returned like any other
// response. Only validation failures and transport failures produce an error.
func (s *ProxyService) Fetch(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.parseTarget(pr.URL)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fetching asset", "host", target.Host)

	resp, err := s.client.Get(pr.Ctx, target.String(), upstreamHeaders())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target.Host, err)
	}

	resp.Header = rewriteResponseHeaders(resp.Header)
	return resp, nil
}

// parseTarget checks that raw is an absolute http(s) URL on an allowed host.
func (s *ProxyService) parseTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, ErrMissingURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidURL, raw)
	}

	if !s.cfg.Upstream.HostAllowed(u.Hostname()) {
		return nil, fmt.Errorf("%q: %w", u.Hostname(), client.ErrHostNotAllowed)
	}

	return u, nil
}

func upstreamHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", upstreamUserAgent)
	h.Set("Accept", upstreamAccept)
	return h
}

func rewriteResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range passthroughResponseHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}

	contentType := src.Get("Content-Type")
	if contentType == "" {
		contentType = fallbackContentType
	}
	dst.Set("Content-Type", contentType)
	dst.Set("Access-Control-Allow-Origin", "*")
	dst.Set("Cache-Control", cacheControl)
	return dst
}
