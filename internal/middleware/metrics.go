package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"blog-gateway/internal/metrics"
)

// noRoute labels requests that never resolved to a backend.
const noRoute = "none"

// MetricsMiddleware counts and times inbound requests. Requests the proxy
// handler resolved carry their route segment; everything else is "none".
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)

			req := c.Request()
			labels := []string{
				metrics.NormalizeMethod(req.Method),
				strconv.Itoa(finalStatus(c, err)),
				m.NormalizePath(req.URL.Path),
				routeLabel(c),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// finalStatus is the status the client ends up with. An error returned here
// has not been rendered yet, so its code wins over the recorded one.
func finalStatus(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func routeLabel(c echo.Context) string {
	if route, ok := c.Get(RouteKey).(string); ok && route != "" {
		return route
	}
	return noRoute
}
