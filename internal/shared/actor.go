package shared

import "context"

// SystemRoleName is the role recorded for server-initiated actions that have
// no originating user (seeding, scheduled jobs).
const SystemRoleName = "Sistema"

// Actor identifies who is performing an operation. The System actor is a
// distinct variant, not a row in usuarios, so it can never collide with a
// real user id.
type Actor struct {
	UserID   int64
	RoleName string
	system   bool
}

// AuthenticatedActor builds an actor for a logged-in user.
func AuthenticatedActor(userID int64, roleName string) Actor {
	return Actor{UserID: userID, RoleName: roleName}
}

// SystemActor builds the pseudo-actor used for server-initiated actions.
func SystemActor() Actor {
	return Actor{RoleName: SystemRoleName, system: true}
}

// IsSystem reports whether this is the System pseudo-actor.
func (a Actor) IsSystem() bool {
	return a.system
}

// AuditUserID returns the user id to store on audit entries, nil for the
// System actor.
func (a Actor) AuditUserID() *int64 {
	if a.system {
		return nil
	}
	id := a.UserID
	return &id
}

// AuditRoleName returns the role name to store on audit entries.
func (a Actor) AuditRoleName() string {
	if a.RoleName == "" {
		return SystemRoleName
	}
	return a.RoleName
}

type actorContextKey struct{}

// ContextWithActor stores the acting identity in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting identity from context. The second
// return value is false for unauthenticated requests.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
