package shared

import (
	"context"

	"github.com/google/uuid"
)

// Role is the coarse permission class carried by an authenticated actor.
type Role string

const (
	// RoleAdmin prepares and manages quotes.
	RoleAdmin Role = "admin"
	// RoleCustomer answers quotes addressed to them.
	RoleCustomer Role = "customer"
)

// Actor identifies the caller of a lifecycle operation.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
