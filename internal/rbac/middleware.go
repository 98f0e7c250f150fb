package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// Middleware wires role checks for HTTP handlers. Roles are read from the
// actor placed in the context by the auth middleware.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current actor carries at least one of the roles.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	normalized := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing credentials")
				return
			}
			for _, role := range normalized {
				if actor.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if m.Logger != nil {
				m.Logger.Warn("role check failed", slog.Int64("user_id", actor.UserID), slog.Any("required", normalized))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
		})
	}
}

// RequireAll ensures the current actor carries every listed role.
func (m Middleware) RequireAll(roles ...string) func(http.Handler) http.Handler {
	normalized := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing credentials")
				return
			}
			for _, role := range normalized {
				if !actor.HasRole(role) {
					httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeRoles(roles []string) []string {
	unique := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		unique[role] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for role := range unique {
		normalized = append(normalized, role)
	}
	return normalized
}
