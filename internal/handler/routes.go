package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blog-gateway/internal/config"
	"blog-gateway/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Any path outside these falls through to Echo's 404.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/gateway/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	prefix := cfg.Server.APIPrefix
	e.Any(prefix+"/*", proxy.Handle)
}
