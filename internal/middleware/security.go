package middleware

import (
	"github.com/labstack/echo/v4"
)

const relayedKey = "gateway.relayed"

var hardeningHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
}

// MarkRelayed flags the current response as a backend's. SecurityHeaders
// leaves such responses as the backend sent them.
func MarkRelayed(c echo.Context) {
	c.Set(relayedKey, true)
}

// SecurityHeaders returns an Echo middleware that adds baseline hardening
// headers to responses the gateway produces itself (errors, health, status,
// metrics). Headers already set by the handler are kept.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			res.Before(func() {
				if relayed, _ := c.Get(relayedKey).(bool); relayed {
					return
				}
				h := res.Header()
				for k, v := range hardeningHeaders {
					if h.Get(k) == "" {
						h.Set(k, v)
					}
				}
			})

			return next(c)
		}
	}
}
