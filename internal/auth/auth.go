// Package auth extracts the caller's principal from a bearer token and gates
// handlers on a declared permission set.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/httpx"

	"github.com/golang-jwt/jwt/v4"
)

// Permission is the closed set of principal tiers.
type Permission string

const (
	PermissionAdmin Permission = "Admin"
	PermissionUser  Permission = "User"
)

// ParsePermission matches s case-insensitively.
func ParsePermission(s string) (Permission, bool) {
	for _, p := range []Permission{PermissionAdmin, PermissionUser} {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// Principal is the authenticated caller.
type Principal struct {
	UserID     string
	Permission Permission
}

// Claims are the token claims the identity service issues.
type Claims struct {
	UserID     string `json:"user_id"`
	Permission string `json:"permission"`
	jwt.RegisteredClaims
}

type contextKey int

const (
	principalKey contextKey = iota
	credentialKey
)

// WithCredential stores the raw bearer token so outbound calls can forward it.
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey, token)
}

// CredentialFrom returns the bearer token stored by WithCredential.
func CredentialFrom(ctx context.Context) string {
	token, _ := ctx.Value(credentialKey).(string)
	return token
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Authenticator validates HMAC-signed bearer tokens.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware attaches the principal and credential to the request context.
// Requests without a valid token are rejected with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			httpx.WriteError(w, apperr.Unauthorized("missing Authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httpx.WriteError(w, apperr.Unauthorized("invalid Authorization header format"))
			return
		}

		principal, err := a.Parse(parts[1])
		if err != nil {
			httpx.WriteError(w, err)
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		ctx = WithCredential(ctx, parts[1])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Parse validates token and returns its principal.
func (a *Authenticator) Parse(token string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Principal{}, apperr.Unauthorized("invalid token")
	}

	perm, ok := ParsePermission(claims.Permission)
	if !ok {
		return Principal{}, apperr.Forbidden("token carries no known permission")
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	return Principal{UserID: userID, Permission: perm}, nil
}

// RequirePermission allows the request through only if the principal's tier
// is in allowed. It must run after Authenticator.Middleware.
func RequirePermission(allowed ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				httpx.WriteError(w, apperr.Unauthorized("unauthenticated"))
				return
			}
			for _, perm := range allowed {
				if p.Permission == perm {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.WriteError(w, apperr.Forbidden("insufficient permission"))
		})
	}
}
