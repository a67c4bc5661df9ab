// Package client provides the outbound HTTP client used to fetch remote assets.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"asset-proxy/internal/config"
	"asset-proxy/internal/metrics"
	"asset-proxy/internal/model"
)

// maxRedirects bounds how many redirects a single fetch may follow.
const maxRedirects = 10

var (
	// ErrPrivateNetwork is returned when deny_private_networks is set and the
	// target resolves to a loopback, private, or link-local address.
	ErrPrivateNetwork = errors.New("destination address is in a private network")

	// ErrHostNotAllowed is returned when an allow-list is configured and the
	// target (or a redirect target) is not on it.
	ErrHostNotAllowed = errors.New("host is not in the allow-list")
)

// FetchClient sends GET requests to arbitrary upstream origins.
type FetchClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewFetchClient creates a FetchClient with connection pooling and a bounded
// request lifetime. The metrics parameter is optional; pass nil to disable
// upstream metrics recording.
func NewFetchClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *FetchClient {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if cfg.Upstream.DenyPrivateNetworks {
		dialer.Control = denyPrivateNetworks
	}

	transport := &http.Transport{
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		DialContext:           dialer.DialContext,
	}

	upstream := cfg.Upstream
	return &FetchClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				if !upstream.HostAllowed(req.URL.Hostname()) {
					return fmt.Errorf("redirect to %q: %w", req.URL.Hostname(), ErrHostNotAllowed)
				}
				return nil
			},
		},
		logger:  logger.With("component", "fetch_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *FetchClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(metrics.OutcomeError).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		c.metrics.UpstreamDuration.WithLabelValues(metrics.OutcomeResponse).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	}

	return &model.ProxyResponse{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

// Get issues a GET for target with the given headers and returns the response
// with its body still unread. The context controls the whole exchange: when it
// is canceled (e.g. the downstream client disconnects) the upstream request
// and any in-progress body read are aborted.
func (c *FetchClient) Get(ctx context.Context, target string, header http.Header) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = header

	return c.Do(req)
}

// denyPrivateNetworks is a net.Dialer Control hook. It runs after DNS
// resolution, so it also catches public names that resolve to internal addresses.
func denyPrivateNetworks(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("parse dial address %q: %w", address, err)
	}
	if isPrivate(ap.Addr().Unmap()) {
		return fmt.Errorf("dial %s: %w", ap.Addr(), ErrPrivateNetwork)
	}
	return nil
}

func isPrivate(a netip.Addr) bool {
	return a.IsLoopback() ||
		a.IsPrivate() ||
		a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() ||
		a.IsInterfaceLocalMulticast() ||
		a.IsUnspecified()
}
