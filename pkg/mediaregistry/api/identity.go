package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/media-registry/pkg/mediaregistry"
)

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller
func WithCaller(ctx context.Context, caller mediaregistry.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the authenticated caller, if any
func CallerFromContext(ctx context.Context) (mediaregistry.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(mediaregistry.Address)
	return caller, ok && !caller.IsZero()
}

// Identity authenticates requests and stores the caller in the request
// context. Requests without a valid identity are rejected with 401.
type Identity interface {
	Middleware(next http.Handler) http.Handler
}

// JWTIdentity takes the caller address from the sub claim of an HS256
// bearer token.
type JWTIdentity struct {
	auth *jwtauth.JWTAuth
}

// NewJWTIdentity creates a JWT identity provider using secret
func NewJWTIdentity(secret []byte) (*JWTIdentity, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTIdentity{auth: jwtauth.New("HS256", secret, nil)}, nil
}

// IssueToken signs a token for caller valid for ttl
func (j *JWTIdentity) IssueToken(caller mediaregistry.Address, ttl time.Duration) (string, error) {
	if caller.IsZero() {
		return "", errors.New("caller address is required")
	}
	now := time.Now()
	claims := map[string]interface{}{
		"sub": caller.String(),
		"iat": now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	_, token, err := j.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (j *JWTIdentity) Middleware(next http.Handler) http.Handler {
	check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "a valid bearer token is required")
			return
		}
		sub, _ := claims["sub"].(string)
		caller := mediaregistry.Address(strings.TrimSpace(sub))
		if caller.IsZero() {
			writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "token has no subject")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
	return jwtauth.Verifier(j.auth)(check)
}

// DefaultCallerHeader is read by HeaderIdentity when no header is configured
const DefaultCallerHeader = "X-Caller-Address"

// HeaderIdentity trusts a caller address set by an upstream gateway.
type HeaderIdentity struct {
	Header string
}

func (h HeaderIdentity) Middleware(next http.Handler) http.Handler {
	header := h.Header
	if header == "" {
		header = DefaultCallerHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := mediaregistry.Address(strings.TrimSpace(r.Header.Get(header)))
		if caller.IsZero() {
			writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, header+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}
