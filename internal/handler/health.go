package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"blog-gateway/internal/route"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	table   *route.Table
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(table *route.Table, v Version) *HealthHandler {
	return &HealthHandler{table: table, version: v}
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type routeStatus struct {
	Prefix string `json:"prefix"`
	Target string `json:"target"`
}

type gatewayStatus struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Routes  []routeStatus `json:"routes"`
}

// Status reports the build version and the configured route table.
func (h *HealthHandler) Status(c echo.Context) error {
	entries := h.table.Entries()
	routes := make([]routeStatus, 0, len(entries))
	for _, e := range entries {
		routes = append(routes, routeStatus{
			Prefix: h.table.Prefix() + "/" + e.Segment,
			Target: e.Target.Redacted(),
		})
	}

	return c.JSON(http.StatusOK, gatewayStatus{
		Status:  "ok",
		Version: string(h.version),
		Routes:  routes,
	})
}
