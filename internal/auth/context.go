package auth

import "context"

// Session is the verified per-request identity: the decoded access claims
// plus the permission set resolved at verification time. Guards read from
// it for the lifetime of one request instead of re-querying the store.
type Session struct {
	Claims      *Claims
	Permissions PermissionSet
}

// UserID returns the token subject.
func (s *Session) UserID() string {
	if s == nil || s.Claims == nil {
		return ""
	}
	return s.Claims.Subject
}

// Roles returns the role snapshot embedded in the token.
func (s *Session) Roles() []string {
	if s == nil || s.Claims == nil {
		return nil
	}
	return s.Claims.Roles
}

// SessionID returns the session identifier shared by the token pair.
func (s *Session) SessionID() string {
	if s == nil || s.Claims == nil {
		return ""
	}
	return s.Claims.SessionID
}

// HasAnyRole reports whether the session's role snapshot intersects the
// required set. Case-sensitive exact match.
func (s *Session) HasAnyRole(required []string) bool {
	if s == nil || s.Claims == nil {
		return false
	}
	held := make(map[string]struct{}, len(s.Claims.Roles))
	for _, r := range s.Claims.Roles {
		held[r] = struct{}{}
	}
	for _, want := range required {
		if _, ok := held[want]; ok {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the session's resolved permission set
// intersects the required set.
func (s *Session) HasAnyPermission(required []string) bool {
	if s == nil || s.Permissions == nil {
		return false
	}
	for _, want := range required {
		if s.Permissions.Has(want) {
			return true
		}
	}
	return false
}

type sessionContextKey struct{}

// ContextWithSession attaches the verified session to the context.
func ContextWithSession(ctx context.Context, session *Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext extracts the verified session. Absence means the
// request never passed token verification; callers must treat that as an
// authorization failure, never as "allow".
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}
