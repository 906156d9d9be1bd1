package identity

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"blog-gateway/internal/config"
)

const testSecret = "test-secret-key"

func newTestExtractor() *Extractor {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:    testSecret,
			SubjectClaim: "userId",
		},
	}
	return NewExtractor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// signToken mints a token the way the auth service does.
func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func unsignedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"userId": "user-42",
		"email":  "reader@example.com",
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func headerWith(auth string) http.Header {
	h := http.Header{}
	if auth != "" {
		h.Set("Authorization", auth)
	}
	return h
}

func TestExtract_ValidToken(t *testing.T) {
	x := newTestExtractor()

	for _, method := range []jwt.SigningMethod{jwt.SigningMethodHS256, jwt.SigningMethodHS384, jwt.SigningMethodHS512} {
		t.Run(method.Alg(), func(t *testing.T) {
			token := signToken(t, method, testSecret, validClaims())

			id, ok := x.Extract(headerWith("Bearer " + token))
			if !ok {
				t.Fatal("Extract() ok = false, want true")
			}
			if id.SubjectID != "user-42" {
				t.Errorf("SubjectID = %q, want %q", id.SubjectID, "user-42")
			}
		})
	}
}

func TestExtract_SchemeCaseInsensitive(t *testing.T) {
	x := newTestExtractor()
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())

	if _, ok := x.Extract(headerWith("bearer " + token)); !ok {
		t.Error("Extract() with lowercase scheme ok = false, want true")
	}
}

func TestExtract_CustomSubjectClaim(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: testSecret, SubjectClaim: "sub"}}
	x := NewExtractor(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	claims := validClaims()
	claims["sub"] = "subject-7"
	token := signToken(t, jwt.SigningMethodHS256, testSecret, claims)

	id, ok := x.Extract(headerWith("Bearer " + token))
	if !ok || id.SubjectID != "subject-7" {
		t.Errorf("Extract() = (%+v, %v), want (subject-7, true)", id, ok)
	}
}

func TestExtract_NoIdentity(t *testing.T) {
	x := newTestExtractor()

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	noExp := validClaims()
	delete(noExp, "exp")

	notYet := validClaims()
	notYet["nbf"] = time.Now().Add(time.Hour).Unix()

	noSubject := validClaims()
	delete(noSubject, "userId")

	numericSubject := validClaims()
	numericSubject["userId"] = 42

	emptySubject := validClaims()
	emptySubject["userId"] = ""

	good := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())

	tests := []struct {
		name string
		auth string
	}{
		{"absent", ""},
		{"scheme only", "Bearer"},
		{"empty token", "Bearer "},
		{"three parts", "Bearer " + good + " extra"},
		{"wrong scheme", "Basic " + good},
		{"token without scheme", good},
		{"garbage", "Bearer not.a.jwt"},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, "other-secret", validClaims())},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, expired)},
		{"missing exp", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, noExp)},
		{"not yet valid", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, notYet)},
		{"missing subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, noSubject)},
		{"numeric subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, numericSubject)},
		{"empty subject", "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, emptySubject)},
		{"alg none", "Bearer " + unsignedToken(t, validClaims())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := x.Extract(headerWith(tt.auth))
			if ok {
				t.Errorf("Extract() = (%+v, true), want no identity", id)
			}
			if id != (Identity{}) {
				t.Errorf("Extract() identity = %+v, want zero value", id)
			}
		})
	}
}

func TestExtract_Repeatable(t *testing.T) {
	x := newTestExtractor()
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims())
	h := headerWith("Bearer " + token)

	first, _ := x.Extract(h)
	for range 5 {
		got, ok := x.Extract(h)
		if !ok || got != first {
			t.Fatalf("Extract() = (%+v, %v), want (%+v, true)", got, ok, first)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Bearer abc", "abc", true},
		{"BEARER abc", "abc", true},
		{"Bearer", "", false},
		{"Bearer  abc", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
