package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"asset-proxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves liveness and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Ping answers liveness probes with a fixed body.
func (h *HealthHandler) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}

// Status returns server status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":      "ok",
		"version":     string(h.version),
		"static_root": h.cfg.Static.Root,
	})
}
