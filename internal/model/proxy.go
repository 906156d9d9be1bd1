// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"

	"blog-gateway/internal/identity"
)

// ProxyRequest represents a client request to be forwarded to a backend.
//
// Exactly one of Body and Parsed is meaningful: when HasParsed is true the
// inbound stream was consumed by the JSON body parser and the outgoing body
// must be rebuilt from Parsed. ContentLength describes Body; zero or negative
// means unknown.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawPath       string
	RawQuery      string
	Header        http.Header
	Body          io.Reader
	ContentLength int64
	Parsed        any
	HasParsed     bool

	// Identity is set only when the bearer credential verified.
	Identity    identity.Identity
	HasIdentity bool
	RequestID   string
}

// ProxyResponse represents the backend response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
