package shared

import "context"

// Actor identifies the authenticated caller of a command. Roles are resolved
// once per request by the auth middleware and carried in context rather than
// global state.
type Actor struct {
	UserID  int64
	AgentID int64
	Roles   []string
}

// HasRole reports whether the actor holds the given role.
func (a *Actor) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
