package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"peopleops.org/internal/auth"
	"peopleops.org/internal/ids"
)

type roleStore struct {
	db *sql.DB
}

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, name, description, is_system_role, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.Name, role.Description, role.IsSystemRole, role.CreatedAt, role.UpdatedAt)
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	return err
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return s.findWhere(ctx, `id = $1`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findWhere(ctx, `name = $1`, name)
}

func (s *roleStore) findWhere(ctx context.Context, where string, arg any) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, is_system_role, created_at, updated_at
		from roles where `+where, arg,
	).Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) Assign(ctx context.Context, assignment auth.UserRole) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, assigned_by, assigned_at, expires_at)
		values ($1, $2, $3, $4, $5)
	`, assignment.UserID, assignment.RoleID, nullString(assignment.AssignedBy),
		assignment.AssignedAt, nullTime(assignment.ExpiresAt))
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: unknown user or role", auth.ErrNotFound)
		}
	}
	return err
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *roleStore) AssignmentsForUser(ctx context.Context, userID string) ([]auth.UserRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, assigned_by, assigned_at, expires_at
		from user_roles
		where user_id = $1
		order by assigned_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.UserRole
	for rows.Next() {
		var (
			a          auth.UserRole
			assignedBy sql.NullString
			expiresAt  sql.NullTime
		)
		if err := rows.Scan(&a.UserID, &a.RoleID, &assignedBy, &a.AssignedAt, &expiresAt); err != nil {
			return nil, err
		}
		a.AssignedBy = stringPtr(assignedBy)
		a.ExpiresAt = timePtr(expiresAt)
		result = append(result, a)
	}
	return result, rows.Err()
}

type permissionStore struct {
	db *sql.DB
}

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	if len(perms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		id := p.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, name, description, module, action, resource, created_at)
			values ($1, $2, $3, $4, $5, $6, now())
			on conflict (name) do nothing
		`, id, p.Name, p.Description, p.Module, p.Action, p.Resource); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, module, action, resource, created_at
		from permissions
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.module, p.action, p.resource, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.name
	`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, permissionNames []string, grantedBy *string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, name := range permissionNames {
		res, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id, granted_by, granted_at)
			select $1, id, $3, now() from permissions where name = $2
		`, roleID, name, nullString(grantedBy))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: permission %q", auth.ErrNotFound, name)
		}
	}
	return tx.Commit()
}

func scanPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	var result []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Module, &p.Action, &p.Resource, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
