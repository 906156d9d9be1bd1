package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"blog-gateway/internal/identity"
	"blog-gateway/internal/metrics"
	"blog-gateway/internal/middleware"
	"blog-gateway/internal/model"
	"blog-gateway/internal/route"
	"blog-gateway/internal/service"
)

// statusClientClosedRequest records a request whose client left before a
// response could be written. It is never sent on the wire.
const statusClientClosedRequest = 499

// ProxyHandler is the gateway's ingress: it attaches the caller's identity,
// picks a backend and relays the backend's answer.
type ProxyHandler struct {
	table      *route.Table
	extractor  *identity.Extractor
	dispatcher *service.Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. m may be nil.
func NewProxyHandler(
	table *route.Table,
	extractor *identity.Extractor,
	dispatcher *service.Dispatcher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ProxyHandler {
	return &ProxyHandler{
		table:      table,
		extractor:  extractor,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger.With("component", "proxy_handler"),
	}
}

// Handle forwards the request to the backend owning its first path segment
// and streams the response back. Authentication never rejects a request.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	id, authenticated := h.extractor.Extract(req.Header)
	h.recordAuth(req.Header, authenticated)

	entry, err := h.table.Resolve(req.URL.Path)
	if err != nil {
		return h.mapError(c, err)
	}
	c.Set(middleware.RouteKey, entry.Segment)

	pr := &model.ProxyRequest{
		Ctx:         req.Context(),
		Method:      req.Method,
		Path:        req.URL.Path,
		RawPath:     req.URL.RawPath,
		RawQuery:    req.URL.RawQuery,
		Header:      req.Header,
		Identity:    id,
		HasIdentity: authenticated,
		RequestID:   c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if parsed, ok := middleware.ParsedBody(c); ok {
		pr.Parsed, pr.HasParsed = parsed, true
	} else {
		pr.Body = req.Body
		pr.ContentLength = req.ContentLength
	}

	resp, err := h.dispatcher.Forward(pr, entry)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	middleware.MarkRelayed(c)

	// Backend values win over anything set by earlier middleware.
	dst := c.Response().Header()
	for key, vals := range resp.Header {
		dst[key] = vals
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent, so a failure here can only truncate the body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Warn("streaming response body",
			"err", err,
			"route", entry.Segment,
			"path", req.URL.Path,
		)
	}

	return nil
}

// mapError resolves a routing or dispatch failure into a client response.
// Nothing is written when the client has already gone away; the recorded
// status becomes 499 so logs and metrics do not count it as a success.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	if errors.Is(err, route.ErrNotFound) {
		h.logger.Debug("no route", "path", path)
		return c.JSON(http.StatusNotFound, errorBody{Error: "route not found"})
	}

	if errors.Is(err, service.ErrBodySerialization) {
		h.logger.Error("proxy error", "err", err, "path", path)
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal gateway error"})
	}

	// The inbound body failed while streaming, e.g. over the body limit.
	// It is returned to the client unchanged.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		h.logger.Debug("request body rejected", "status", he.Code, "path", path)
		return he
	}

	var de *service.DispatchError
	if !errors.As(err, &de) {
		h.logger.Error("proxy error", "err", err, "path", path)
		return c.JSON(http.StatusBadGateway, errorBody{Error: "upstream request failed"})
	}

	if h.metrics != nil {
		h.metrics.DispatchErrors.WithLabelValues(de.Route, de.Kind.String()).Inc()
	}

	switch de.Kind {
	case service.Canceled:
		h.logger.Debug("client went away", "route", de.Route, "path", path)
		c.Response().Status = statusClientClosedRequest
		return nil
	case service.Timeout:
		h.logger.Error("proxy error", "err", err, "route", de.Route, "path", path)
		return c.JSON(http.StatusGatewayTimeout, errorBody{Error: "upstream request timed out"})
	default:
		h.logger.Error("proxy error", "err", err, "route", de.Route, "path", path)
		return c.JSON(http.StatusBadGateway, errorBody{Error: "upstream service unavailable"})
	}
}

func (h *ProxyHandler) recordAuth(header http.Header, authenticated bool) {
	if h.metrics == nil {
		return
	}
	outcome := "anonymous"
	switch {
	case authenticated:
		outcome = "verified"
	case header.Get("Authorization") != "":
		outcome = "rejected"
	}
	h.metrics.Authenticated.WithLabelValues(outcome).Inc()
}
