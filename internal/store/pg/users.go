package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"peopleops.org/internal/auth"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `id, email, password_hash, first_name, last_name, middle_name,
	is_active, is_email_verified, last_login_at, password_changed_at, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, first_name, last_name, middle_name,
			is_active, is_email_verified, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, nullIfEmpty(u.MiddleName),
		u.IsActive, u.IsEmailVerified, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findWhere(ctx, `id = $1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findWhere(ctx, `email = $1`, email)
}

func (s *userStore) findWhere(ctx context.Context, where string, arg any) (*auth.User, error) {
	var (
		u          auth.User
		middleName sql.NullString
		lastLogin  sql.NullTime
		pwChanged  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where `+where, arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &middleName,
		&u.IsActive, &u.IsEmailVerified, &lastLogin, &pwChanged, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if middleName.Valid {
		u.MiddleName = middleName.String
	}
	u.LastLoginAt = timePtr(lastLogin)
	u.PasswordChangedAt = timePtr(pwChanged)
	return &u, nil
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2, password_changed_at = now(), updated_at = now()
		where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set last_login_at = $2, updated_at = now() where id = $1
	`, userID, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
