package handler

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"asset-proxy/internal/client"
	"asset-proxy/internal/metrics"
	"asset-proxy/internal/model"
	"asset-proxy/internal/service"
)

// ProxyHandler relays remote assets to clients that cannot fetch them directly.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter may be nil.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle fetches the url query parameter and streams the upstream response back.
// A HEAD request gets the upstream status and headers only.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp, err := h.service.Fetch(&model.ProxyRequest{
		Ctx: req.Context(),
		URL: c.QueryParam("url"),
	})
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	res := c.Response()
	commit := func() {
		for key, vals := range resp.Header {
			res.Header()[key] = vals
		}
		res.WriteHeader(resp.StatusCode)
	}

	if !resp.HasBody() || req.Method == http.MethodHead {
		commit()
		return nil
	}

	written, committed, err := relay(res, resp.Body, commit)
	if h.metrics != nil {
		h.metrics.ProxiedBytes.Add(float64(written))
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, errClientWrite) || req.Context().Err() != nil {
		// The client went away; its context cancellation already aborted the upstream fetch.
		h.logger.Debug("client disconnected during relay", "err", err, "bytes", written)
		return nil
	}

	if !committed {
		return h.mapError(c, err)
	}

	// Status and headers are on the wire. Aborting the connection is the only
	// way to tell the client the body is incomplete.
	h.logger.Error("upstream stream failed after response started",
		"err", err,
		"bytes", written,
	)
	panic(http.ErrAbortHandler)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingURL):
		return c.String(http.StatusBadRequest, "url required")
	case errors.Is(err, service.ErrInvalidURL):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, client.ErrHostNotAllowed):
		h.logger.Warn("proxy target rejected", "err", err)
		return c.String(http.StatusForbidden, "host not allowed")
	}

	h.logger.Error("proxy error", "err", err)

	if errors.Is(err, client.ErrPrivateNetwork) {
		return c.String(http.StatusBadGateway, "upstream address not allowed")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.String(http.StatusBadGateway, "upstream request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.String(http.StatusBadGateway, "upstream request timed out")
	}

	if errors.Is(err, context.Canceled) {
		return c.String(http.StatusBadGateway, "client disconnected")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.String(http.StatusBadGateway, "upstream host unreachable: "+dnsErr.Name)
	}

	if errors.Is(err, errUpstreamRead) {
		return c.String(http.StatusBadGateway, "upstream stream failed")
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.String(http.StatusBadGateway, "upstream connection failed")
	}

	return c.String(http.StatusBadGateway, "upstream request failed")
}
