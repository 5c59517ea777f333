package rbac

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-app/custodia/internal/perms"
)

// GrantSource loads the raw user->role->permission join rows.
type GrantSource interface {
	UserGrants(ctx context.Context, userID int64) ([]Grant, error)
}

// Resolver answers capability checks by unioning operation grants across all
// of a user's roles. Absence of a grant is denial: a user with zero roles, or
// an id with no usuarios row at all, denies every check.
type Resolver struct {
	source          GrantSource
	includeInactive bool
	group           singleflight.Group
}

// ResolverOption customises resolver behaviour.
type ResolverOption func(*Resolver)

// WithInactiveGrants makes the resolver count grants from inactive roles and
// permissions. The default excludes them.
func WithInactiveGrants() ResolverOption {
	return func(r *Resolver) {
		r.includeInactive = true
	}
}

// NewResolver builds a resolver over the given grant source.
func NewResolver(source GrantSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{source: source}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EffectivePermissions returns the union of operation sets per resource name
// across every role assigned to the user. Concurrent lookups for the same
// user share one store round trip.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) (map[string]perms.OpSet, error) {
	result, err, _ := r.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		grants, err := r.source.UserGrants(ctx, userID)
		if err != nil {
			return nil, err
		}
		effective := make(map[string]perms.OpSet)
		for _, g := range grants {
			if !r.includeInactive && (!g.RoleActive || !g.PermissionActive) {
				continue
			}
			effective[g.Resource] = effective[g.Resource].Union(perms.Decode(g.Operations))
		}
		return effective, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]perms.OpSet), nil
}

// IsAuthorized reports whether the user may perform op on the named resource.
// A storage failure propagates; anything else resolves to a plain deny.
func (r *Resolver) IsAuthorized(ctx context.Context, userID int64, resource string, op perms.Op) (bool, error) {
	effective, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	ops, ok := effective[resource]
	if !ok {
		return false, nil
	}
	return ops.Has(op), nil
}
