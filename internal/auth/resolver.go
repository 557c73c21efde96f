package auth

import (
	"context"
	"sort"
	"time"
)

// PermissionSet is a deduplicated set of permission names.
type PermissionSet map[string]struct{}

// Has reports whether the set contains the named permission.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the set's members in sorted order.
func (s PermissionSet) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolver maps a user's current role assignments to an effective
// permission set. Expired assignments grant nothing.
type Resolver struct {
	store Store
	now   func() time.Time
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source used for expiry checks.
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// activeAssignments returns the user's assignments whose expiry, if any, is
// still in the future.
func (r *Resolver) activeAssignments(ctx context.Context, userID string) ([]UserRole, error) {
	assignments, err := r.store.Roles().AssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.now().UTC()
	active := assignments[:0]
	for _, a := range assignments {
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			continue
		}
		active = append(active, a)
	}
	return active, nil
}

// RolesForUser returns the names of the user's currently assigned,
// non-expired roles.
func (r *Resolver) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	assignments, err := r.activeAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(assignments))
	var names []string
	for _, a := range assignments {
		role, err := r.store.Roles().Find(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[role.Name]; ok {
			continue
		}
		seen[role.Name] = struct{}{}
		names = append(names, role.Name)
	}
	return names, nil
}

// PermissionsForUser unions the permission sets of the user's active roles,
// deduplicated by permission name.
func (r *Resolver) PermissionsForUser(ctx context.Context, userID string) (PermissionSet, error) {
	assignments, err := r.activeAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(PermissionSet)
	for _, a := range assignments {
		perms, err := r.store.Permissions().ForRole(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			set[p.Name] = struct{}{}
		}
	}
	return set, nil
}

// HasRole reports whether the user currently holds the named role.
// Comparison is case-sensitive and exact.
func (r *Resolver) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	names, err := r.RolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if name == roleName {
			return true, nil
		}
	}
	return false, nil
}

// HasAnyRole reports whether the user currently holds at least one of the
// named roles.
func (r *Resolver) HasAnyRole(ctx context.Context, userID string, roleNames []string) (bool, error) {
	names, err := r.RolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	held := make(map[string]struct{}, len(names))
	for _, name := range names {
		held[name] = struct{}{}
	}
	for _, want := range roleNames {
		if _, ok := held[want]; ok {
			return true, nil
		}
	}
	return false, nil
}
