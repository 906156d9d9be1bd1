package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const parsedBodyKey = "gateway.parsed_body"

// parsedBody wraps the decoded value so other context keys cannot collide.
type parsedBody struct {
	value any
}

// JSONBodyParser consumes JSON request bodies and stores the decoded value on
// the context, leaving the request body empty. Only objects and arrays are
// accepted at the top level; anything else, or malformed input, is a 400.
// Numbers are kept as json.Number so re-encoding does not lose precision.
func JSONBodyParser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody || req.ContentLength == 0 ||
				!isJSONContentType(req.Header.Get(echo.HeaderContentType)) {
				return next(c)
			}

			data, err := io.ReadAll(req.Body)
			_ = req.Body.Close()
			req.Body = http.NoBody
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					return he
				}
				return echo.NewHTTPError(http.StatusBadRequest, "could not read request body")
			}
			if len(bytes.TrimSpace(data)) == 0 {
				req.ContentLength = 0
				return next(c)
			}

			value, err := decodeStrict(data)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body").SetInternal(err)
			}

			c.Set(parsedBodyKey, parsedBody{value: value})
			return next(c)
		}
	}
}

// ParsedBody returns the value stored by JSONBodyParser, if any.
func ParsedBody(c echo.Context) (any, bool) {
	pb, ok := c.Get(parsedBodyKey).(parsedBody)
	if !ok {
		return nil, false
	}
	return pb.value, true
}

func decodeStrict(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}

	switch value.(type) {
	case map[string]any, []any:
		return value, nil
	default:
		return nil, errors.New("top-level JSON value must be an object or array")
	}
}

// isJSONContentType matches application/json and any +json suffix type.
func isJSONContentType(v string) bool {
	if v == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return false
	}
	return mt == echo.MIMEApplicationJSON || (strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json"))
}
