package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/lucasmartinez/tienda-backend/api/responses"
	pkgauth "github.com/lucasmartinez/tienda-backend/pkg/auth"
	"github.com/lucasmartinez/tienda-backend/pkg/config"
	"github.com/lucasmartinez/tienda-backend/pkg/enums"
	pkgerrors "github.com/lucasmartinez/tienda-backend/pkg/errors"
	"github.com/lucasmartinez/tienda-backend/pkg/logger"
)

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

func contextWithClaims(r *http.Request, logg *logger.Logger, claims *pkgauth.AccessTokenClaims) *http.Request {
	ctx := WithUserID(r.Context(), claims.UserID)
	ctx = WithSessionID(ctx, SessionIDFromContext(r.Context()))
	ctx = WithRole(ctx, string(claims.Role))

	if logg != nil {
		ctx = logg.WithUserID(ctx, strconv.FormatUint(claims.UserID, 10))
		ctx = logg.WithField(ctx, "actor_role", string(claims.Role))
	}

	return r.WithContext(ctx)
}

// Auth validates a bearer token and seeds the request context with the claims.
// Requests without valid credentials are rejected.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.UserID == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
				return
			}

			next.ServeHTTP(w, contextWithClaims(r, logg, claims))
		})
	}
}

// OptionalAuth seeds the context with claims when a valid bearer token is
// present but lets anonymous requests through. An invalid token is still an
// error so clients learn their session expired instead of silently shopping
// as a guest.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.UserID == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing subject"))
				return
			}

			next.ServeHTTP(w, contextWithClaims(r, logg, claims))
		})
	}
}

// RequireAdmin rejects requests whose actor is not an administrator.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != enums.UserRoleAdmin.String() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
