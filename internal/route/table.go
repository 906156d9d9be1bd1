// Package route resolves request paths to backend base URLs.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"blog-gateway/internal/config"
)

// ErrNotFound is returned when no route matches a request path.
var ErrNotFound = errors.New("route not found")

// Entry is one backend mapping.
type Entry struct {
	Segment string
	Target  *url.URL
}

// Table maps the first path segment below the API prefix to a backend.
// It is immutable after New and safe for concurrent use without locking.
type Table struct {
	prefix  string
	entries []Entry
}

// New builds a Table mounted at prefix (e.g. "/api") from the given routes.
// Entries keep their configured order; the first matching segment wins.
func New(prefix string, routes []config.RouteConfig) (*Table, error) {
	if prefix == "" || prefix[0] != '/' || strings.HasSuffix(prefix, "/") {
		return nil, fmt.Errorf("route: invalid prefix %q", prefix)
	}

	entries := make([]Entry, 0, len(routes))
	seen := make(map[string]bool, len(routes))
	for _, r := range routes {
		if r.Segment == "" || strings.Contains(r.Segment, "/") {
			return nil, fmt.Errorf("route: invalid segment %q", r.Segment)
		}
		if seen[r.Segment] {
			return nil, fmt.Errorf("route: duplicate segment %q", r.Segment)
		}
		seen[r.Segment] = true

		u, err := url.Parse(r.Target)
		if err != nil {
			return nil, fmt.Errorf("route: parse target for %q: %w", r.Segment, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("route: target for %q must be an absolute http(s) URL; got %q", r.Segment, r.Target)
		}
		if u.RawQuery != "" || u.Fragment != "" {
			return nil, fmt.Errorf("route: target for %q must not carry a query or fragment", r.Segment)
		}
		entries = append(entries, Entry{Segment: r.Segment, Target: u})
	}

	return &Table{prefix: prefix, entries: entries}, nil
}

// NewFromConfig builds the Table described by cfg.
func NewFromConfig(cfg *config.Config) (*Table, error) {
	return New(cfg.Server.APIPrefix, cfg.Routes)
}

// Resolve returns the entry whose segment equals the first path segment below
// the prefix. "/api/posts/42" resolves the "posts" entry; "/api/postsx" does not.
func (t *Table) Resolve(path string) (Entry, error) {
	seg, ok := t.segment(path)
	if !ok {
		return Entry{}, ErrNotFound
	}
	for _, e := range t.entries {
		if e.Segment == seg {
			return e, nil
		}
	}
	return Entry{}, ErrNotFound
}

func (t *Table) segment(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, t.prefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutPrefix(rest, "/")
	if !ok {
		return "", false
	}
	seg, _, _ := strings.Cut(rest, "/")
	return seg, seg != ""
}

// Prefix returns the API mount prefix.
func (t *Table) Prefix() string {
	return t.prefix
}

// Entries returns a copy of the configured entries in match order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// PathPrefixes returns the full path prefix of every entry, e.g. "/api/posts".
func (t *Table) PathPrefixes() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = t.prefix + "/" + e.Segment
	}
	return out
}
