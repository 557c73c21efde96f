package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store used by resolver and service tests.
type memStore struct {
	mu          sync.Mutex
	users       map[string]*User
	roles       map[string]*Role
	perms       map[string]*Permission
	assignments []UserRole
	grants      []RolePermission
	loginLogs   []LoginLog
	auditLogs   []AuditLog
	revoked     map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*User),
		roles:   make(map[string]*Role),
		perms:   make(map[string]*Permission),
		revoked: make(map[string]bool),
	}
}

func (m *memStore) Users() UserStore             { return (*memUsers)(m) }
func (m *memStore) Roles() RoleStore             { return (*memRoles)(m) }
func (m *memStore) Permissions() PermissionStore { return (*memPerms)(m) }
func (m *memStore) LoginLogs() LoginLogStore     { return (*memLoginLogs)(m) }
func (m *memStore) AuditLogs() AuditLogStore     { return (*memAuditLogs)(m) }
func (m *memStore) Sessions() SessionStore       { return (*memSessions)(m) }

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrConflict
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	return nil
}

func (m *memUsers) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type memRoles memStore

func (m *memRoles) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == role.Name {
			return ErrConflict
		}
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRoles) FindByName(_ context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRoles) Assign(_ context.Context, assignment UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.UserID == assignment.UserID && a.RoleID == assignment.RoleID {
			return ErrConflict
		}
	}
	m.assignments = append(m.assignments, assignment)
	return nil
}

func (m *memRoles) Unassign(_ context.Context, userID, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.assignments {
		if a.UserID == userID && a.RoleID == roleID {
			m.assignments = append(m.assignments[:i], m.assignments[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memRoles) AssignmentsForUser(_ context.Context, userID string) ([]UserRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UserRole
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memPerms memStore

func (m *memPerms) Ensure(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		if _, ok := m.perms[p.Name]; !ok {
			cp := p
			if cp.ID == "" {
				cp.ID = "perm-" + p.Name
			}
			m.perms[p.Name] = &cp
		}
	}
	return nil
}

func (m *memPerms) List(_ context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Permission
	for _, p := range m.perms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memPerms) ForRole(_ context.Context, roleID string) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Permission
	for _, g := range m.grants {
		if g.RoleID != roleID {
			continue
		}
		for _, p := range m.perms {
			if p.ID == g.PermissionID {
				out = append(out, *p)
			}
		}
	}
	return out, nil
}

func (m *memPerms) SetForRole(_ context.Context, roleID string, permissionNames []string, grantedBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.grants[:0]
	for _, g := range m.grants {
		if g.RoleID != roleID {
			kept = append(kept, g)
		}
	}
	m.grants = kept
	for _, name := range permissionNames {
		p, ok := m.perms[name]
		if !ok {
			return ErrNotFound
		}
		m.grants = append(m.grants, RolePermission{
			RoleID:       roleID,
			PermissionID: p.ID,
			GrantedBy:    grantedBy,
			GrantedAt:    time.Now().UTC(),
		})
	}
	return nil
}

type memLoginLogs memStore

func (m *memLoginLogs) Append(_ context.Context, entry *LoginLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginLogs = append(m.loginLogs, *entry)
	return nil
}

func (m *memLoginLogs) ForUser(_ context.Context, userID string, limit, offset int) ([]LoginLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LoginLog
	for i := len(m.loginLogs) - 1; i >= 0; i-- {
		l := m.loginLogs[i]
		if l.UserID != nil && *l.UserID == userID {
			out = append(out, l)
		}
	}
	return page(out, limit, offset), nil
}

func (m *memLoginLogs) CountFailedSince(_ context.Context, username string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, l := range m.loginLogs {
		if l.Username == username && !l.Successful && !l.LoginTime.Before(since) {
			count++
		}
	}
	return count, nil
}

type memAuditLogs memStore

func (m *memAuditLogs) Append(_ context.Context, entry *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLogs = append(m.auditLogs, *entry)
	return nil
}

func (m *memAuditLogs) ForRecord(_ context.Context, tableName, recordID string, limit, offset int) ([]AuditLog, error) {
	return m.filter(func(e AuditLog) bool { return e.TableName == tableName && e.RecordID == recordID }, limit, offset)
}

func (m *memAuditLogs) ForTable(_ context.Context, tableName string, limit, offset int) ([]AuditLog, error) {
	return m.filter(func(e AuditLog) bool { return e.TableName == tableName }, limit, offset)
}

func (m *memAuditLogs) ForUser(_ context.Context, changedBy string, limit, offset int) ([]AuditLog, error) {
	return m.filter(func(e AuditLog) bool { return e.ChangedBy != nil && *e.ChangedBy == changedBy }, limit, offset)
}

func (m *memAuditLogs) filter(keep func(AuditLog) bool, limit, offset int) ([]AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditLog
	for i := len(m.auditLogs) - 1; i >= 0; i-- {
		if keep(m.auditLogs[i]) {
			out = append(out, m.auditLogs[i])
		}
	}
	return page(out, limit, offset), nil
}

type memSessions memStore

func (m *memSessions) Revoke(_ context.Context, sessionID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = true
	return nil
}

func (m *memSessions) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[sessionID], nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// captureRecorder collects audit events synchronously for assertions.
type captureRecorder struct {
	mu       sync.Mutex
	attempts []LoginAttempt
	changes  []Change
}

func (r *captureRecorder) LoginAttempt(_ context.Context, attempt LoginAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
}

func (r *captureRecorder) Change(_ context.Context, change Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *captureRecorder) lastAttempt() (LoginAttempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.attempts) == 0 {
		return LoginAttempt{}, false
	}
	return r.attempts[len(r.attempts)-1], true
}
