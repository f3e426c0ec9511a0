package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/service"
	"github.com/quickqr/qrbot/pkg/httpx"
	"github.com/quickqr/qrbot/pkg/slogx"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// IdentityFromContext returns the authenticated caller set by
// AuthnMiddleware.
func IdentityFromContext(ctx context.Context) (service.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(service.Identity)
	return id, ok
}

// AuthnMiddleware resolves the bearer token to a caller identity. The full
// Authorize path runs per request: signature, expiry, revocation registry
// and the live user row.
func AuthnMiddleware(auth *service.AuthService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))

			identity, err := auth.Authorize(ctx, raw)
			if err != nil {
				log.Warn("bearer token rejected", "err", err)
				writeAuthorizeError(w, err)
				return
			}

			ctx = context.WithValue(ctx, ctxKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a handler on the caller's role. Denials are
// recorded as security events.
func RequirePermission(perm domain.Permission, audit *service.Auditor) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			identity, ok := IdentityFromContext(ctx)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			if !identity.Role.Allows(perm) {
				audit.Record(ctx, domain.EventPermissionDenied, identity.UserID,
					domain.SeverityWarning, map[string]any{
						"permission": string(perm),
						"path":       r.URL.Path,
					})
				writeBearerPermissionError(w, perm)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}

func writeBearerPermissionError(w http.ResponseWriter, perm domain.Permission) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+string(perm)+`"`)
	httpx.WriteError(w, http.StatusForbidden, "permission_denied",
		"The authenticated user may not perform this action.")
}
