package identity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-sfa/meridian-sfa/internal/platform/httpx"
	"github.com/meridian-sfa/meridian-sfa/internal/shared"
)

// RolesPort resolves role names for a user.
type RolesPort interface {
	RolesForUser(ctx context.Context, userID int64) ([]string, error)
}

// Authenticator turns bearer tokens into a request actor.
type Authenticator struct {
	logger *slog.Logger
	repo   RepositoryPort
	roles  RolesPort
}

// NewAuthenticator constructs the middleware.
func NewAuthenticator(logger *slog.Logger, repo RepositoryPort, roles RolesPort) *Authenticator {
	return &Authenticator{logger: logger, repo: repo, roles: roles}
}

// Middleware resolves the Authorization header to a shared.Actor. Requests
// without a valid token continue with no actor; role guards reject them.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := a.resolve(r.Context(), raw)
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

func (a *Authenticator) resolve(ctx context.Context, raw string) (*shared.Actor, error) {
	userID, err := a.repo.ResolveToken(ctx, HashToken(raw))
	if err != nil {
		return nil, err
	}
	user, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrAuthorization
	}
	roles, err := a.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	agentID, err := a.repo.AgentIDForUser(ctx, userID)
	if err != nil {
		a.logger.Warn("agent lookup", slog.Int64("user_id", userID), slog.Any("error", err))
		agentID = 0
	}
	return &shared.Actor{UserID: userID, AgentID: agentID, Roles: roles}, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
