package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"peopleops.org/internal/ids"
)

// Audit reasons recorded per failed login attempt. These are server-side
// forensics; the client always sees the uniform "invalid credentials".
const (
	reasonUserNotFound       = "User not found"
	reasonInvalidPassword    = "Invalid password"
	reasonAccountDeactivated = "Account deactivated"
)

var (
	// ErrInvalidCredentials is the uniform client-facing login failure. It
	// deliberately does not reveal whether the account exists.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)

	// ErrAccountDeactivated is surfaced directly: the caller proved
	// knowledge of the password, so naming the state leaks nothing.
	ErrAccountDeactivated = fmt.Errorf("%w: account is deactivated", ErrUnauthorized)
)

// Service orchestrates credential validation, session issuance, password
// changes and logout.
type Service struct {
	store    Store
	tokens   *TokenService
	hasher   *PasswordHasher
	resolver *Resolver
	recorder Recorder
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (test hook).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the authentication core together. The recorder must obey
// the Recorder contract: a failed audit write never surfaces here.
func NewService(store Store, tokens *TokenService, hasher *PasswordHasher, resolver *Resolver, recorder Recorder, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if hasher == nil {
		hasher = NewPasswordHasher(DefaultPasswordPolicy())
	}
	if resolver == nil {
		resolver = NewResolver(store)
	}
	if recorder == nil {
		return nil, errors.New("auth: recorder is required")
	}
	s := &Service{
		store:    store,
		tokens:   tokens,
		hasher:   hasher,
		resolver: resolver,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Tokens exposes the token service for wiring (middleware, introspection).
func (s *Service) Tokens() *TokenService { return s.tokens }

// Resolver exposes the permission resolver.
func (s *Service) Resolver() *Resolver { return s.resolver }

// EnsureBuiltins makes sure the predefined permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions().Ensure(ctx, BuiltinPermissions)
}

// LoginInput carries one login request.
type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	Meta       RequestMeta
}

// RegisterInput carries one registration request.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Roles     []string
	Meta      RequestMeta
}

// ValidateCredentials runs the login state machine up to session issuance.
// Every terminal branch records a login-log entry first. It returns
// (nil, nil, nil) for "user not found" and "invalid password" so the caller
// can surface the uniform failure, and fails only for a deactivated account.
func (s *Service) ValidateCredentials(ctx context.Context, email, password string, meta RequestMeta) (*User, []string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		s.recorder.LoginAttempt(ctx, LoginAttempt{
			Username:      email,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
			FailureReason: reasonUserNotFound,
		})
		return nil, nil, nil
	}

	user, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.recorder.LoginAttempt(ctx, LoginAttempt{
			Username:      email,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
			FailureReason: reasonUserNotFound,
		})
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		s.recorder.LoginAttempt(ctx, LoginAttempt{
			UserID:        &user.ID,
			Username:      email,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
			FailureReason: reasonInvalidPassword,
		})
		return nil, nil, nil
	}

	if !user.IsActive {
		s.recorder.LoginAttempt(ctx, LoginAttempt{
			UserID:        &user.ID,
			Username:      email,
			IPAddress:     meta.IPAddress,
			UserAgent:     meta.UserAgent,
			FailureReason: reasonAccountDeactivated,
		})
		return nil, nil, ErrAccountDeactivated
	}

	now := s.now().UTC()
	if err := s.store.Users().SetLastLogin(ctx, user.ID, now); err != nil {
		return nil, nil, err
	}
	user.LastLoginAt = &now

	roles, err := s.resolver.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.recorder.LoginAttempt(ctx, LoginAttempt{
		UserID:     &user.ID,
		Username:   email,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		Successful: true,
	})
	return user, roles, nil
}

// Login validates credentials and issues a fresh session token pair.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	user, roles, err := s.ValidateCredentials(ctx, in.Email, in.Password, in.Meta)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	sessionID := s.tokens.NewSessionID()
	pair, err := s.tokens.IssuePair(user.ID, user.Email, roles, sessionID, in.RememberMe)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         sanitize(user, roles),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn(),
	}, nil
}

// Register validates password strength, creates the user with its role set
// (defaulting to Employee) and issues a session identical in shape to login.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	user, roleNames, err := s.createUser(ctx, in, nil)
	if err != nil {
		return nil, err
	}

	sessionID := s.tokens.NewSessionID()
	pair, err := s.tokens.IssuePair(user.ID, user.Email, roleNames, sessionID, false)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         sanitize(user, roleNames),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn(),
	}, nil
}

// CreateUser is the operator-driven variant of Register. The new account
// gets no session; the audit entry carries the acting operator.
func (s *Service) CreateUser(ctx context.Context, in RegisterInput, actor *string) (UserView, error) {
	user, roleNames, err := s.createUser(ctx, in, actor)
	if err != nil {
		return UserView{}, err
	}
	return sanitize(user, roleNames), nil
}

func (s *Service) createUser(ctx context.Context, in RegisterInput, actor *string) (*User, []string, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}

	if ok, violations := s.hasher.ValidateStrength(in.Password); !ok {
		return nil, nil, &WeakPasswordError{Violations: violations}
	}

	roleNames := dedupeStrings(in.Roles)
	if len(roleNames) == 0 {
		roleNames = []string{DefaultRole}
	}
	roles := make([]*Role, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := s.store.Roles().FindByName(ctx, name)
		if errors.Is(err, ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: role %q", ErrNotFound, name)
		}
		if err != nil {
			return nil, nil, err
		}
		roles = append(roles, role)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, nil, err
	}

	for _, role := range roles {
		assignment := UserRole{UserID: user.ID, RoleID: role.ID, AssignedAt: now}
		if err := s.store.Roles().Assign(ctx, assignment); err != nil {
			return nil, nil, err
		}
	}

	s.recorder.Change(ctx, Change{
		TableName: "users",
		RecordID:  user.ID,
		Action:    ActionInsert,
		NewValues: map[string]any{
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"roles":      roleNames,
		},
		ChangedBy: actor,
		IPAddress: in.Meta.IPAddress,
		UserAgent: in.Meta.UserAgent,
	})

	return user, roleNames, nil
}

// RefreshAccessToken re-issues an access token bound to the same subject and
// session. Roles are re-resolved here, so assignment changes take effect on
// refresh rather than mid-session.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.store.Sessions().IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: session revoked", ErrInvalidToken)
	}

	user, err := s.store.Users().Find(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}

	roles, err := s.resolver.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	token, expiresIn, err := s.tokens.IssueAccessToken(user.ID, user.Email, roles, claims.SessionID)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{
		AccessToken: token,
		ExpiresIn:   expiresIn,
	}, nil
}

// ChangePassword verifies the current password, checks the replacement's
// strength and persists the new hash. Hashing happens here, at the service
// boundary; the store only ever sees hashed values.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta RequestMeta) error {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return fmt.Errorf("%w: current password is incorrect", ErrUnauthorized)
	}

	if ok, violations := s.hasher.ValidateStrength(newPassword); !ok {
		return &WeakPasswordError{Violations: violations}
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.recorder.Change(ctx, Change{
		TableName: "users",
		RecordID:  user.ID,
		Action:    ActionUpdate,
		NewValues: map[string]any{"password_changed": true},
		ChangedBy: &user.ID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// Logout invalidates the session server-side. Outstanding access tokens stay
// verifiable until expiry; the revocation bites on the next refresh.
func (s *Service) Logout(ctx context.Context, sessionID, userID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	return s.store.Sessions().Revoke(ctx, sessionID, userID)
}

// AssignRole grants a role to a user, optionally time-boxed. The acting
// administrator lands in both the assignment row and the audit trail.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string, expiresAt *time.Time, actor *string, meta RequestMeta) error {
	if _, err := s.store.Users().Find(ctx, userID); err != nil {
		return err
	}
	role, err := s.store.Roles().Find(ctx, roleID)
	if err != nil {
		return err
	}

	assignment := UserRole{
		UserID:     userID,
		RoleID:     role.ID,
		AssignedBy: actor,
		AssignedAt: s.now().UTC(),
		ExpiresAt:  expiresAt,
	}
	if err := s.store.Roles().Assign(ctx, assignment); err != nil {
		return err
	}

	values := map[string]any{"role_id": role.ID, "role_name": role.Name}
	if expiresAt != nil {
		values["expires_at"] = expiresAt.UTC()
	}
	s.recorder.Change(ctx, Change{
		TableName: "user_roles",
		RecordID:  userID,
		Action:    ActionInsert,
		NewValues: values,
		ChangedBy: actor,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// UnassignRole removes a role assignment.
func (s *Service) UnassignRole(ctx context.Context, userID, roleID string, actor *string, meta RequestMeta) error {
	if err := s.store.Roles().Unassign(ctx, userID, roleID); err != nil {
		return err
	}
	s.recorder.Change(ctx, Change{
		TableName: "user_roles",
		RecordID:  userID,
		Action:    ActionDelete,
		OldValues: map[string]any{"role_id": roleID},
		ChangedBy: actor,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// ValidateAccessToken verifies a bearer token and builds the per-request
// session: decoded claims plus the permission set resolved once, here, and
// cached on the request context for the guards.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	perms, err := s.resolver.PermissionsForUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &Session{Claims: claims, Permissions: perms}, nil
}

// CurrentUser loads the sanitized view of the token subject with freshly
// resolved roles.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*UserView, error) {
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	roles, err := s.resolver.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	view := sanitize(user, roles)
	return &view, nil
}

func sanitize(user *User, roles []string) UserView {
	if roles == nil {
		roles = []string{}
	}
	return UserView{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Roles:     roles,
	}
}
