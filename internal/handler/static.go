package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"asset-proxy/internal/static"
)

// StaticHandler serves files from the static root for every unmatched path.
type StaticHandler struct {
	root   *static.Root
	logger *slog.Logger
}

// NewStaticHandler creates a StaticHandler.
func NewStaticHandler(root *static.Root, logger *slog.Logger) *StaticHandler {
	return &StaticHandler{
		root:   root,
		logger: logger.With("component", "static_handler"),
	}
}

// Serve writes the file named by the request path. Content type comes from the
// file extension or, failing that, from sniffing the first bytes. Range and
// conditional requests are honoured.
func (h *StaticHandler) Serve(c echo.Context) error {
	req := c.Request()

	f, err := h.root.Open(req.URL.Path)
	if errors.Is(err, static.ErrNotFound) {
		return echo.ErrNotFound
	}
	if err != nil {
		h.logger.Error("static file error", "err", err, "path", req.URL.Path)
		return echo.ErrInternalServerError
	}
	defer func() { _ = f.Close() }()

	http.ServeContent(c.Response(), req, f.Info.Name(), f.Info.ModTime(), f)
	return nil
}
