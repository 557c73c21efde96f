package auth

import (
	"context"
	"time"
)

// Store describes the persistence operations the auth subsystem consumes.
// Implementations map unique-constraint violations to ErrConflict and
// missing rows to ErrNotFound.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	LoginLogs() LoginLogStore
	AuditLogs() AuditLogStore
	Sessions() SessionStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetLastLogin(ctx context.Context, userID string, at time.Time) error
}

// RoleStore manages roles and user-role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	Assign(ctx context.Context, assignment UserRole) error
	Unassign(ctx context.Context, userID, roleID string) error
	AssignmentsForUser(ctx context.Context, userID string) ([]UserRole, error)
}

// PermissionStore manages the permission catalog and role grants.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
	SetForRole(ctx context.Context, roleID string, permissionNames []string, grantedBy *string) error
}

// LoginLogStore appends and queries immutable login attempt records.
type LoginLogStore interface {
	Append(ctx context.Context, entry *LoginLog) error
	ForUser(ctx context.Context, userID string, limit, offset int) ([]LoginLog, error)
	CountFailedSince(ctx context.Context, username string, since time.Time) (int, error)
}

// AuditLogStore appends and queries immutable record-change entries.
type AuditLogStore interface {
	Append(ctx context.Context, entry *AuditLog) error
	ForRecord(ctx context.Context, tableName, recordID string, limit, offset int) ([]AuditLog, error)
	ForTable(ctx context.Context, tableName string, limit, offset int) ([]AuditLog, error)
	ForUser(ctx context.Context, changedBy string, limit, offset int) ([]AuditLog, error)
}

// SessionStore is the server-side session invalidation extension point.
// Access-token verification stays pure; revocation takes effect on refresh.
type SessionStore interface {
	Revoke(ctx context.Context, sessionID, userID string) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}
