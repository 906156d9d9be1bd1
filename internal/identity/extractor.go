// Package identity derives the caller's identity from a bearer credential.
//
// Verification is permissive: a missing, malformed, expired or forged token
// yields "no identity" and the request continues anonymously. Backends decide
// what an anonymous caller may do.
package identity

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"blog-gateway/internal/config"
)

// validMethods restricts verification to the HMAC family keyed by the shared secret.
var validMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// leeway tolerates small clock skew between the auth service and the gateway.
const leeway = 5 * time.Second

// Identity is an authenticated caller.
type Identity struct {
	SubjectID string
}

// Extractor verifies bearer tokens against a process-wide secret.
type Extractor struct {
	secret       []byte
	subjectClaim string
	parser       *jwt.Parser
	logger       *slog.Logger
}

// NewExtractor creates an Extractor from the auth section of cfg.
func NewExtractor(cfg *config.Config, logger *slog.Logger) *Extractor {
	return &Extractor{
		secret:       []byte(cfg.Auth.JWTSecret),
		subjectClaim: cfg.Auth.SubjectClaim,
		parser: jwt.NewParser(
			jwt.WithValidMethods(validMethods),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
		logger: logger.With("component", "identity"),
	}
}

// Extract returns the identity asserted by the Authorization header, if any.
// It never fails: every verification problem reports ok == false.
func (x *Extractor) Extract(header http.Header) (Identity, bool) {
	token, ok := bearerToken(header.Get("Authorization"))
	if !ok {
		return Identity{}, false
	}

	claims := jwt.MapClaims{}
	if _, err := x.parser.ParseWithClaims(token, claims, x.keyFunc); err != nil {
		x.logger.Debug("credential rejected", "err", err)
		return Identity{}, false
	}

	subject, _ := claims[x.subjectClaim].(string)
	if subject == "" {
		x.logger.Debug("credential has no subject", "claim", x.subjectClaim)
		return Identity{}, false
	}
	return Identity{SubjectID: subject}, true
}

func (x *Extractor) keyFunc(_ *jwt.Token) (any, error) {
	return x.secret, nil
}

// bearerToken splits a "<scheme> <token>" value and accepts only the Bearer scheme.
func bearerToken(value string) (string, bool) {
	scheme, token, found := strings.Cut(value, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	if token == "" || strings.Contains(token, " ") {
		return "", false
	}
	return token, true
}
