package auth

import (
	"context"
	"time"
)

// Audit actions recorded for mutating operations.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// DefaultRole is assigned to registrants that specify no roles.
const DefaultRole = "Employee"

// User is an account able to authenticate against the service.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	MiddleName        string
	IsActive          bool
	IsEmailVerified   bool
	LastLoginAt       *time.Time
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Role groups permissions under a stable name. Access-control checks compare
// names, not IDs.
type Role struct {
	ID           string
	Name         string
	Description  string
	IsSystemRole bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Permission is an atomic capability, named `resource:action`.
type Permission struct {
	ID          string
	Name        string
	Description string
	Module      string
	Action      string
	Resource    string
	CreatedAt   time.Time
}

// UserRole links a user to a role. The (UserID, RoleID) pair is unique.
// An assignment with ExpiresAt in the past still exists as a row but no
// longer grants the role.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedBy *string
	AssignedAt time.Time
	ExpiresAt  *time.Time
}

// RolePermission links a role to a permission. (RoleID, PermissionID) unique.
type RolePermission struct {
	RoleID       string
	PermissionID string
	GrantedBy    *string
	GrantedAt    time.Time
}

// LoginLog is an immutable record of one login attempt.
type LoginLog struct {
	ID            string
	UserID        *string
	Username      string
	IPAddress     *string
	UserAgent     *string
	Successful    bool
	FailureReason *string
	LoginTime     time.Time
}

// AuditLog is an immutable record of one data mutation.
type AuditLog struct {
	ID        string
	TableName string
	RecordID  string
	Action    string
	OldValues map[string]any
	NewValues map[string]any
	ChangedBy *string
	IPAddress *string
	UserAgent *string
	ChangedAt time.Time
}

// UserView is the sanitized user shape returned to callers. It never carries
// the password hash.
type UserView struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Roles     []string `json:"roles"`
}

// AuthResult is returned by login and register.
type AuthResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
}

// RefreshResult is returned when an access token is re-issued.
type RefreshResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RequestMeta carries the forensic fields recorded alongside login attempts.
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
}

// LoginAttempt is handed to the audit recorder once per login attempt.
type LoginAttempt struct {
	UserID        *string
	Username      string
	IPAddress     *string
	UserAgent     *string
	Successful    bool
	FailureReason string
}

// Change is handed to the audit recorder once per mutating operation.
type Change struct {
	TableName string
	RecordID  string
	Action    string
	OldValues map[string]any
	NewValues map[string]any
	ChangedBy *string
	IPAddress *string
	UserAgent *string
}

// Recorder receives audit events. Implementations must never let a failed
// write surface back into the authentication flow.
type Recorder interface {
	LoginAttempt(ctx context.Context, attempt LoginAttempt)
	Change(ctx context.Context, change Change)
}
