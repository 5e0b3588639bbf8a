package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/brandlens/brandlens/pkg/types"
)

// RoleHeader carries the caller's dashboard role.
const RoleHeader = "X-Brandlens-Role"

type ctxKey struct{}

// Middleware returns HTTP middleware that enforces API key authentication and
// attaches the caller's role to the request context.
//
// Behaviour:
//   - If mode != "apikey" or key == "", the key check is skipped.
//   - Otherwise the value of header must equal key; a missing, empty or
//     incorrect key returns 401.
//   - An unknown role in RoleHeader returns 400. An absent role is a viewer.
func Middleware(mode, header, key string) func(http.Handler) http.Handler {
	check := mode == "apikey" && key != ""
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if check {
				got := r.Header.Get(header)
				if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
					slog.Debug("auth: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
					writeErr(w, http.StatusUnauthorized, "invalid api key")
					return
				}
			}

			role, err := types.ParseRole(r.Header.Get(RoleHeader))
			if err != nil {
				writeErr(w, http.StatusBadRequest, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
		})
	}
}

// WithRole returns a copy of ctx carrying role.
func WithRole(ctx context.Context, role types.Role) context.Context {
	return context.WithValue(ctx, ctxKey{}, role)
}

// RoleFrom returns the role stored by Middleware, or viewer if none is set.
func RoleFrom(ctx context.Context) types.Role {
	if role, ok := ctx.Value(ctxKey{}).(types.Role); ok {
		return role
	}
	return types.RoleViewer
}

// RequireEditor wraps h so that only editors and admins reach it.
func RequireEditor(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !RoleFrom(r.Context()).CanEditRules() {
			writeErr(w, http.StatusForbidden, "editor or admin role required")
			return
		}
		h(w, r)
	}
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
