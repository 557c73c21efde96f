// Package mem is the in-memory store used for development and tests. It
// implements the same contract as the Postgres store, including conflict
// and not-found mapping, so the service behaves identically on top of it.
package mem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"peopleops.org/internal/auth"
)

// Store keeps everything in maps guarded by one lock. Suitable for a single
// process; data is gone on restart.
type Store struct {
	mu          sync.RWMutex
	users       map[string]auth.User
	roles       map[string]auth.Role
	perms       map[string]auth.Permission
	assignments []auth.UserRole
	grants      []auth.RolePermission
	loginLogs   []auth.LoginLog
	auditLogs   []auth.AuditLog
	revoked     map[string]time.Time
}

var _ auth.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:   make(map[string]auth.User),
		roles:   make(map[string]auth.Role),
		perms:   make(map[string]auth.Permission),
		revoked: make(map[string]time.Time),
	}
}

func (s *Store) Users() auth.UserStore             { return (*userStore)(s) }
func (s *Store) Roles() auth.RoleStore             { return (*roleStore)(s) }
func (s *Store) Permissions() auth.PermissionStore { return (*permissionStore)(s) }
func (s *Store) LoginLogs() auth.LoginLogStore     { return (*loginLogStore)(s) }
func (s *Store) AuditLogs() auth.AuditLogStore     { return (*auditLogStore)(s) }
func (s *Store) Sessions() auth.SessionStore       { return (*sessionStore)(s) }

type userStore Store

func (s *userStore) Create(_ context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return auth.ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *userStore) Find(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now().UTC()
	u.PasswordHash = passwordHash
	u.PasswordChangedAt = &now
	u.UpdatedAt = now
	s.users[userID] = u
	return nil
}

func (s *userStore) SetLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLoginAt = &at
	s.users[userID] = u
	return nil
}

type roleStore Store

func (s *roleStore) Create(_ context.Context, role *auth.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.ID]; ok {
		return auth.ErrConflict
	}
	for _, r := range s.roles {
		if r.Name == role.Name {
			return auth.ErrConflict
		}
	}
	s.roles[role.ID] = *role
	return nil
}

func (s *roleStore) Find(_ context.Context, id string) (*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &r, nil
}

func (s *roleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			out := r
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *roleStore) Assign(_ context.Context, assignment auth.UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[assignment.UserID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.roles[assignment.RoleID]; !ok {
		return auth.ErrNotFound
	}
	for _, a := range s.assignments {
		if a.UserID == assignment.UserID && a.RoleID == assignment.RoleID {
			return auth.ErrConflict
		}
	}
	s.assignments = append(s.assignments, assignment)
	return nil
}

func (s *roleStore) Unassign(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.assignments {
		if a.UserID == userID && a.RoleID == roleID {
			s.assignments = append(s.assignments[:i], s.assignments[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *roleStore) AssignmentsForUser(_ context.Context, userID string) ([]auth.UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.UserRole
	for _, a := range s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

type permissionStore Store

func (s *permissionStore) Ensure(_ context.Context, perms []auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if _, ok := s.perms[p.Name]; ok {
			continue
		}
		if p.ID == "" {
			p.ID = "perm-" + p.Name
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		s.perms[p.Name] = p
	}
	return nil
}

func (s *permissionStore) List(_ context.Context) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *permissionStore) ForRole(_ context.Context, roleID string) ([]auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Permission
	for _, g := range s.grants {
		if g.RoleID != roleID {
			continue
		}
		for _, p := range s.perms {
			if p.ID == g.PermissionID {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *permissionStore) SetForRole(_ context.Context, roleID string, permissionNames []string, grantedBy *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.grants[:0]
	for _, g := range s.grants {
		if g.RoleID != roleID {
			kept = append(kept, g)
		}
	}
	s.grants = kept
	now := time.Now().UTC()
	for _, name := range permissionNames {
		p, ok := s.perms[name]
		if !ok {
			return auth.ErrNotFound
		}
		s.grants = append(s.grants, auth.RolePermission{
			RoleID:       roleID,
			PermissionID: p.ID,
			GrantedBy:    grantedBy,
			GrantedAt:    now,
		})
	}
	return nil
}

type loginLogStore Store

func (s *loginLogStore) Append(_ context.Context, entry *auth.LoginLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginLogs = append(s.loginLogs, *entry)
	return nil
}

func (s *loginLogStore) ForUser(_ context.Context, userID string, limit, offset int) ([]auth.LoginLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.LoginLog
	for i := len(s.loginLogs) - 1; i >= 0; i-- {
		l := s.loginLogs[i]
		if l.UserID != nil && *l.UserID == userID {
			out = append(out, l)
		}
	}
	return page(out, limit, offset), nil
}

func (s *loginLogStore) CountFailedSince(_ context.Context, username string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, l := range s.loginLogs {
		if l.Username == username && !l.Successful && !l.LoginTime.Before(since) {
			count++
		}
	}
	return count, nil
}

type auditLogStore Store

func (s *auditLogStore) Append(_ context.Context, entry *auth.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, *entry)
	return nil
}

func (s *auditLogStore) ForRecord(_ context.Context, tableName, recordID string, limit, offset int) ([]auth.AuditLog, error) {
	return s.filter(func(e auth.AuditLog) bool {
		return e.TableName == tableName && e.RecordID == recordID
	}, limit, offset)
}

func (s *auditLogStore) ForTable(_ context.Context, tableName string, limit, offset int) ([]auth.AuditLog, error) {
	return s.filter(func(e auth.AuditLog) bool { return e.TableName == tableName }, limit, offset)
}

func (s *auditLogStore) ForUser(_ context.Context, changedBy string, limit, offset int) ([]auth.AuditLog, error) {
	return s.filter(func(e auth.AuditLog) bool {
		return e.ChangedBy != nil && *e.ChangedBy == changedBy
	}, limit, offset)
}

func (s *auditLogStore) filter(keep func(auth.AuditLog) bool, limit, offset int) ([]auth.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.AuditLog
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		if keep(s.auditLogs[i]) {
			out = append(out, s.auditLogs[i])
		}
	}
	return page(out, limit, offset), nil
}

type sessionStore Store

func (s *sessionStore) Revoke(_ context.Context, sessionID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[sessionID]; !ok {
		s.revoked[sessionID] = time.Now().UTC()
	}
	return nil
}

func (s *sessionStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[sessionID]
	return ok, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
