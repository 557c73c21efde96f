package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	svc      *Service
	store    *memStore
	recorder *captureRecorder
	hasher   *PasswordHasher
	now      time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := newMemStore()
	recorder := &captureRecorder{}
	hasher := NewPasswordHasher(DefaultPasswordPolicy())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tokens, err := NewTokenService(testSecret, WithTokenClock(func() time.Time { return now }))
	require.NoError(t, err)

	resolver := NewResolver(store, WithResolverClock(func() time.Time { return now }))
	svc, err := NewService(store, tokens, hasher, resolver, recorder,
		WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	seedRole(t, store, "r-emp", "Employee", PermSchedulesRead)
	seedRole(t, store, "r-hr", "HR_Manager", PermEmployeesRead, PermEmployeesUpdate)

	return &serviceFixture{svc: svc, store: store, recorder: recorder, hasher: hasher, now: now}
}

func (f *serviceFixture) seedUser(t *testing.T, id, email, password string, active bool, roleIDs ...string) {
	t.Helper()
	ctx := context.Background()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	require.NoError(t, f.store.Users().Create(ctx, &User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		IsActive:     active,
	}))
	for _, roleID := range roleIDs {
		require.NoError(t, f.store.Roles().Assign(ctx, UserRole{UserID: id, RoleID: roleID}))
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-hr", "r-emp")

	res, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r$ecret",
	})
	require.NoError(t, err)
	require.Equal(t, "u1", res.User.ID)
	require.ElementsMatch(t, []string{"HR_Manager", "Employee"}, res.User.Roles)
	require.EqualValues(t, 900, res.ExpiresIn)

	claims, err := f.svc.Tokens().VerifyAccess(res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, claims.SessionID, mustRefreshClaims(t, f, res.RefreshToken).SessionID)

	user, err := f.store.Users().Find(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)
	require.True(t, user.LastLoginAt.Equal(f.now))

	attempt, ok := f.recorder.lastAttempt()
	require.True(t, ok)
	require.True(t, attempt.Successful)
	require.Equal(t, "ada@example.com", attempt.Username)
	require.NotNil(t, attempt.UserID)
}

func mustRefreshClaims(t *testing.T, f *serviceFixture, token string) *Claims {
	t.Helper()
	claims, err := f.svc.Tokens().VerifyRefresh(token)
	require.NoError(t, err)
	return claims
}

func TestLoginUnknownUser(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ghost@example.com",
		Password: "whatever",
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	attempt, ok := f.recorder.lastAttempt()
	require.True(t, ok)
	require.False(t, attempt.Successful)
	require.Equal(t, "User not found", attempt.FailureReason)
	require.Nil(t, attempt.UserID)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")

	_, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "not-the-password",
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	attempt, ok := f.recorder.lastAttempt()
	require.True(t, ok)
	require.Equal(t, "Invalid password", attempt.FailureReason)
	require.NotNil(t, attempt.UserID)
	require.Equal(t, "u1", *attempt.UserID)
}

func TestLoginDeactivatedAccount(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", false, "r-emp")

	_, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r$ecret",
	})
	require.ErrorIs(t, err, ErrAccountDeactivated)
	require.ErrorIs(t, err, ErrUnauthorized)

	attempt, ok := f.recorder.lastAttempt()
	require.True(t, ok)
	require.Equal(t, "Account deactivated", attempt.FailureReason)
}

func TestLoginRememberMe(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")

	res, err := f.svc.Login(context.Background(), LoginInput{
		Email:      "ada@example.com",
		Password:   "Sup3r$ecret",
		RememberMe: true,
	})
	require.NoError(t, err)
	require.EqualValues(t, 30*24*60*60, res.ExpiresIn)
}

func TestCreateUserIssuesNoSession(t *testing.T) {
	f := newServiceFixture(t)
	actor := "admin-1"

	view, err := f.svc.CreateUser(context.Background(), RegisterInput{
		Email:     "grace@example.com",
		Password:  "Sup3r$ecret",
		FirstName: "Grace",
		LastName:  "Hopper",
		Roles:     []string{"HR_Manager"},
	}, &actor)
	require.NoError(t, err)
	require.Equal(t, []string{"HR_Manager"}, view.Roles)

	require.Len(t, f.recorder.changes, 1)
	change := f.recorder.changes[0]
	require.Equal(t, "users", change.TableName)
	require.NotNil(t, change.ChangedBy)
	require.Equal(t, actor, *change.ChangedBy)

	// The account works, but only a login establishes a session.
	res, err := f.svc.Login(context.Background(), LoginInput{
		Email: "grace@example.com", Password: "Sup3r$ecret",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken)
}

func TestRegisterDefaultsToEmployee(t *testing.T) {
	f := newServiceFixture(t)

	res, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     "Grace@Example.com",
		Password:  "Sup3r$ecret",
		FirstName: "Grace",
		LastName:  "Hopper",
	})
	require.NoError(t, err)
	require.Equal(t, "grace@example.com", res.User.Email)
	require.Equal(t, []string{"Employee"}, res.User.Roles)
	require.NotEmpty(t, res.AccessToken)
	require.NotEmpty(t, res.RefreshToken)

	require.Len(t, f.recorder.changes, 1)
	change := f.recorder.changes[0]
	require.Equal(t, "users", change.TableName)
	require.Equal(t, ActionInsert, change.Action)
	require.Equal(t, res.User.ID, change.RecordID)

	stored, err := f.store.Users().Find(context.Background(), res.User.ID)
	require.NoError(t, err)
	require.True(t, stored.IsActive)
	require.True(t, IsHash(stored.PasswordHash))
	require.NotEqual(t, "Sup3r$ecret", stored.PasswordHash)
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "grace@example.com",
		Password: "weak",
	})
	var weak *WeakPasswordError
	require.ErrorAs(t, err, &weak)
	require.NotEmpty(t, weak.Violations)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "grace@example.com",
		Password: "Sup3r$ecret",
		Roles:    []string{"Chief_Wizard"},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "grace@example.com", "Sup3r$ecret", true, "r-emp")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "grace@example.com",
		Password: "An0ther$ecret",
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestRegisterRejectsBadEmail(t *testing.T) {
	f := newServiceFixture(t)

	for _, email := range []string{"", "   ", "not-an-email"} {
		_, err := f.svc.Register(context.Background(), RegisterInput{
			Email:    email,
			Password: "Sup3r$ecret",
		})
		require.ErrorIs(t, err, ErrInvalidInput, "email %q", email)
	}
}

func TestRefreshAccessToken(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")

	res, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r$ecret",
	})
	require.NoError(t, err)

	// Assignments made mid-session show up on refresh.
	require.NoError(t, f.store.Roles().Assign(context.Background(), UserRole{UserID: "u1", RoleID: "r-hr"}))

	refreshed, err := f.svc.RefreshAccessToken(context.Background(), res.RefreshToken)
	require.NoError(t, err)
	require.EqualValues(t, 900, refreshed.ExpiresIn)

	claims, err := f.svc.Tokens().VerifyAccess(refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.ElementsMatch(t, []string{"Employee", "HR_Manager"}, claims.Roles)

	original := mustRefreshClaims(t, f, res.RefreshToken)
	require.Equal(t, original.SessionID, claims.SessionID)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")

	res, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r$ecret",
	})
	require.NoError(t, err)

	_, err = f.svc.RefreshAccessToken(context.Background(), res.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshAfterLogout(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")

	res, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r$ecret",
	})
	require.NoError(t, err)

	sessionID := mustRefreshClaims(t, f, res.RefreshToken).SessionID
	require.NoError(t, f.svc.Logout(context.Background(), sessionID, "u1"))

	_, err = f.svc.RefreshAccessToken(context.Background(), res.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Outstanding access tokens keep verifying until they expire.
	_, err = f.svc.ValidateAccessToken(context.Background(), res.AccessToken)
	require.NoError(t, err)
}

func TestRefreshDeactivatedAccount(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")

	res, err := f.svc.Login(context.Background(), LoginInput{
		Email:    "ada@example.com",
		Password: "Sup3r$ecret",
	})
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.users["u1"].IsActive = false
	f.store.mu.Unlock()

	_, err = f.svc.RefreshAccessToken(context.Background(), res.RefreshToken)
	require.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, "u1", "wrong-current", "N3w$ecretValue", RequestMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)

	err = f.svc.ChangePassword(ctx, "u1", "Sup3r$ecret", "weak", RequestMeta{})
	var weak *WeakPasswordError
	require.ErrorAs(t, err, &weak)

	require.NoError(t, f.svc.ChangePassword(ctx, "u1", "Sup3r$ecret", "N3w$ecretValue", RequestMeta{}))

	user, err := f.store.Users().Find(ctx, "u1")
	require.NoError(t, err)
	require.True(t, f.hasher.Verify("N3w$ecretValue", user.PasswordHash))
	require.False(t, f.hasher.Verify("Sup3r$ecret", user.PasswordHash))
	require.NotNil(t, user.PasswordChangedAt)

	require.Len(t, f.recorder.changes, 1)
	require.Equal(t, ActionUpdate, f.recorder.changes[0].Action)
}

func TestValidateAccessTokenBuildsSession(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-hr")
	ctx := context.Background()

	res, err := f.svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "Sup3r$ecret"})
	require.NoError(t, err)

	session, err := f.svc.ValidateAccessToken(ctx, res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "u1", session.UserID())
	require.Equal(t, []string{"HR_Manager"}, session.Roles())
	require.True(t, session.HasAnyPermission([]string{PermEmployeesRead}))
	require.False(t, session.HasAnyPermission([]string{PermUsersDelete}))
	require.True(t, session.HasAnyRole([]string{"HR_Manager", "System_Admin"}))
	require.False(t, session.HasAnyRole([]string{"System_Admin"}))

	_, err = f.svc.ValidateAccessToken(ctx, "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCurrentUser(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "u1", "ada@example.com", "Sup3r$ecret", true, "r-emp")
	ctx := context.Background()

	view, err := f.svc.CurrentUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", view.ID)
	require.Equal(t, []string{"Employee"}, view.Roles)

	_, err = f.svc.CurrentUser(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureBuiltins(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureBuiltins(ctx))
	perms, err := f.store.Permissions().List(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(perms), len(BuiltinPermissions))
}
