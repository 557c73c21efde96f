package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"peopleops.org/internal/ids"
)

// Token types embedded in claims. Every operation checks that the declared
// type matches what it was handed.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	defaultIssuer        = "peopleops"
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultRememberMeTTL = 30 * 24 * time.Hour
)

// Claims is the signed payload shared by both tokens of a pair. Refresh
// tokens omit email and roles.
type Claims struct {
	TokenType string   `json:"token_type"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	SessionID string   `json:"session_id"`
	jwt.RegisteredClaims
}

// TokenPair is one session's access and refresh tokens.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// ExpiresIn returns the access token lifetime in whole seconds, measured
// from the issue instant embedded in the pair. A login with the default
// 15m TTL reports exactly 900 regardless of how long hashing and signing
// took.
func (p TokenPair) ExpiresIn() int64 {
	return int64(p.AccessExpiresAt.Sub(p.IssuedAt) / time.Second)
}

// TokenService signs and verifies session tokens with a server-held secret.
type TokenService struct {
	secret        []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rememberMeTTL time.Duration
	now           func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
	}
}

// WithAccessTTL configures the default access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithRememberMeTTL configures the extended access lifetime used when the
// caller sets rememberMe.
func WithRememberMeTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.rememberMeTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (test hook).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a TokenService signing with the given secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	s := &TokenService{
		secret:        []byte(secret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		rememberMeTTL: defaultRememberMeTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewSessionID returns an opaque, collision-free session identifier.
func (s *TokenService) NewSessionID() string {
	return ids.NewSessionID()
}

// IssuePair signs an access/refresh token pair bound to one session. The
// access lifetime stretches to the remember-me window when requested; the
// refresh lifetime is fixed regardless.
func (s *TokenService) IssuePair(userID, email string, roles []string, sessionID string, rememberMe bool) (TokenPair, error) {
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(sessionID) == "" {
		return TokenPair{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	now := s.now().UTC()
	accessTTL := s.accessTTL
	if rememberMe {
		accessTTL = s.rememberMeTTL
	}
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	accessToken, err := s.sign(Claims{
		TokenType: TokenTypeAccess,
		Email:     email,
		Roles:     dedupeStrings(roles),
		SessionID: sessionID,
	}, userID, now, accessExp)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := s.sign(Claims{
		TokenType: TokenTypeRefresh,
		SessionID: sessionID,
	}, userID, now, refreshExp)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		IssuedAt:         now,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccessToken signs a lone access token for an existing session. The
// returned lifetime is measured from the token's own issue instant.
func (s *TokenService) IssueAccessToken(userID, email string, roles []string, sessionID string) (string, int64, error) {
	now := s.now().UTC()
	exp := now.Add(s.accessTTL)
	token, err := s.sign(Claims{
		TokenType: TokenTypeAccess,
		Email:     email,
		Roles:     dedupeStrings(roles),
		SessionID: sessionID,
	}, userID, now, exp)
	if err != nil {
		return "", 0, fmt.Errorf("sign access token: %w", err)
	}
	return token, int64(exp.Sub(now) / time.Second), nil
}

func (s *TokenService) sign(claims Claims, subject string, now, expiresAt time.Time) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, expiry, issuer and shape. Every failure collapses
// into ErrInvalidToken so the caller cannot leak which check tripped.
func (s *TokenService) Verify(token string) (*Claims, error) {
	return s.parse(token, false)
}

// VerifyAccess verifies a token and requires type "access".
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRefresh verifies a token and requires type "refresh".
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired reports whether a structurally valid token has passed its expiry.
// This is introspection only: it must never feed an authorization decision,
// which is why it is the single place expiry checking can be bypassed.
func (s *TokenService) IsExpired(token string) bool {
	claims, err := s.parse(token, true)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return s.now().UTC().After(claims.ExpiresAt.Time)
}

func (s *TokenService) parse(token string, ignoreExpiry bool) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	keyFn := func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}

	opts := []jwt.ParserOption{jwt.WithTimeFunc(func() time.Time { return s.now().UTC() })}
	if ignoreExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, keyFn, opts...)
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validateShape(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) validateShape(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.TokenType != TokenTypeAccess && claims.TokenType != TokenTypeRefresh {
		return fmt.Errorf("unknown token type %q", claims.TokenType)
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return errors.New("session id missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("expiry precedes issued-at")
	}
	return nil
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
