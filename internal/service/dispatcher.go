// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"blog-gateway/internal/config"
	"blog-gateway/internal/model"
	"blog-gateway/internal/route"
)

// ErrBodySerialization is returned when a parsed body cannot be re-encoded.
// Nothing has been sent to the backend when it is returned.
var ErrBodySerialization = errors.New("re-serialize request body")

// ErrorKind classifies a failed dispatch.
type ErrorKind int

const (
	// Unreachable covers refused, reset and unresolvable connections.
	Unreachable ErrorKind = iota + 1
	// Timeout means the backend did not answer within the dispatch timeout.
	Timeout
	// Canceled means the inbound client went away first.
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Timeout:
		return "timeout"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// DispatchError reports a backend call that produced no response.
type DispatchError struct {
	Kind  ErrorKind
	Route string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s: %s: %v", e.Route, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// hopByHopHeaders are connection-scoped and never forwarded in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Doer sends a prepared request. *client.BackendClient satisfies it.
type Doer interface {
	Do(req *http.Request, route string) (*model.ProxyResponse, error)
}

// Dispatcher forwards requests to the backend chosen by the route table.
type Dispatcher struct {
	client         Doer
	identityHeader string
	logger         *slog.Logger
}

// NewDispatcher creates a Dispatcher. cfg.Auth.IdentityHeader names the
// trust-boundary header that only the gateway may set.
func NewDispatcher(c Doer, cfg *config.Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:         c,
		identityHeader: textproto.CanonicalMIMEHeaderKey(cfg.Auth.IdentityHeader),
		logger:         logger.With("component", "dispatcher"),
	}
}

// Forward prepares pr for the backend in entry and sends it.
// The caller is responsible for closing the response body.
func (d *Dispatcher) Forward(pr *model.ProxyRequest, entry route.Entry) (*model.ProxyResponse, error) {
	req, err := d.Prepare(pr, entry)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("forwarding request",
		"route", entry.Segment,
		"method", pr.Method,
		"path", pr.Path,
		"authenticated", pr.HasIdentity,
		"reserialized", pr.HasParsed,
	)

	return d.Send(req, entry.Segment)
}

// Prepare builds the outgoing request without performing any I/O.
//
// The inbound path is appended to the target's base path unchanged, so
// "/api/posts/7" reaches the posts backend as "/api/posts/7". A body that was
// already parsed is re-encoded and its length recomputed.
func (d *Dispatcher) Prepare(pr *model.ProxyRequest, entry route.Entry) (*http.Request, error) {
	target := d.targetURL(entry.Target, pr)
	header := d.outgoingHeader(pr)

	ctx := pr.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		body   io.Reader
		length int64
	)
	switch {
	case pr.HasParsed:
		encoded, err := json.Marshal(pr.Parsed)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBodySerialization, err)
		}
		body = bytes.NewReader(encoded)
		length = int64(len(encoded))
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}
	case pr.Body != nil && pr.Body != http.NoBody:
		body = pr.Body
		length = pr.ContentLength
		if length <= 0 {
			length = -1 // unknown; sent chunked
		}
	}
	header.Del("Content-Length")

	req, err := http.NewRequestWithContext(ctx, pr.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	// NewRequest re-parses the URL; keep the original escaping intact.
	req.URL = target
	req.Header = header
	req.Host = target.Host
	if body != nil {
		req.ContentLength = length
	}

	return req, nil
}

// Send issues req once. Errors are *DispatchError.
func (d *Dispatcher) Send(req *http.Request, routeName string) (*model.ProxyResponse, error) {
	resp, err := d.client.Do(req, routeName)
	if err != nil {
		return nil, &DispatchError{Kind: classify(err), Route: routeName, Err: err}
	}

	removeHopByHop(resp.Header)
	return resp, nil
}

func (d *Dispatcher) targetURL(base *url.URL, pr *model.ProxyRequest) *url.URL {
	u := &url.URL{
		Scheme:   base.Scheme,
		User:     base.User,
		Host:     base.Host,
		RawQuery: pr.RawQuery,
	}

	basePath := strings.TrimSuffix(base.Path, "/")
	u.Path = basePath + pr.Path
	if pr.RawPath != "" {
		u.RawPath = strings.TrimSuffix(base.EscapedPath(), "/") + pr.RawPath
	}
	return u
}

// outgoingHeader copies the inbound header, drops connection-scoped and
// trust-boundary headers, then applies what the gateway asserts.
func (d *Dispatcher) outgoingHeader(pr *model.ProxyRequest) http.Header {
	h := pr.Header.Clone()
	if h == nil {
		h = make(http.Header)
	}
	removeHopByHop(h)
	h.Del("Host")

	// The identity header is only ever the gateway's own assertion.
	h.Del(d.identityHeader)
	if pr.HasIdentity && pr.Identity.SubjectID != "" {
		h.Set(d.identityHeader, pr.Identity.SubjectID)
	}

	if pr.RequestID != "" {
		h.Set("X-Request-Id", pr.RequestID)
	}
	return h
}

// removeHopByHop deletes hop-by-hop headers, including any named in Connection.
func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for name := range strings.SplitSeq(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// classify maps a transport error onto the dispatch error taxonomy.
func classify(err error) ErrorKind {
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Timeout
	}
	return Unreachable
}
