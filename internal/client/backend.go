// Package client provides the pooled HTTP client used to reach backend services.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"blog-gateway/internal/config"
	"blog-gateway/internal/metrics"
	"blog-gateway/internal/model"
)

// BackendClient sends requests to backend services.
// A single instance is shared by all requests; the underlying transport keeps
// one idle pool per backend host.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
//
// The upstream timeout bounds the wait for response headers only, so a
// backend that starts answering in time can stream a long body.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Upstream.Timeout(),
		// Relay encoded bodies untouched.
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Upstream.DialTimeout(),
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects belong to the caller.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "backend_client"),
		metrics: m,
	}
}

// Do executes a single attempt against the backend and returns the raw response.
// The caller is responsible for closing the response body. route labels metrics.
// The request context controls the lifetime of the backend call: when it is
// canceled (e.g. client disconnects) the call is aborted and its connection
// is dropped from the pool.
func (c *BackendClient) Do(req *http.Request, route string) (*model.ProxyResponse, error) {
	c.logger.Debug("backend request",
		"route", route,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(route, method).Observe(duration)
		}
		return nil, fmt.Errorf("backend request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(route, method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(route, method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// CloseIdleConnections releases pooled connections, used on shutdown.
func (c *BackendClient) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
