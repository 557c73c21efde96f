package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is fixed; the stored hash records it, so raising it later only
// affects newly set passwords.
const bcryptCost = 12

// PasswordPolicy controls the rules enforced by ValidateStrength.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPasswordPolicy is used when no policy is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// PasswordHasher hashes and verifies credentials with bcrypt.
type PasswordHasher struct {
	policy PasswordPolicy
}

// NewPasswordHasher constructs a hasher enforcing the given policy.
func NewPasswordHasher(policy PasswordPolicy) *PasswordHasher {
	if policy.MinLength <= 0 {
		policy.MinLength = DefaultPasswordPolicy().MinLength
	}
	return &PasswordHasher{policy: policy}
}

// Hash derives a salted bcrypt hash from a plaintext password. Callers must
// pass plaintext: re-hashing an existing hash is refused so a stored value
// can never be double-hashed by accident.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	if IsHash(password) {
		return "", fmt.Errorf("%w: value is already a password hash", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches the stored hash.
func (h *PasswordHasher) Verify(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsHash recognizes the bcrypt marker prefix, distinguishing an already
// hashed value from plaintext.
func IsHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") ||
		strings.HasPrefix(value, "$2b$") ||
		strings.HasPrefix(value, "$2y$")
}

// ValidateStrength checks a candidate password against the policy. It is
// total: it never fails, and it returns every violated rule rather than
// stopping at the first.
func (h *PasswordHasher) ValidateStrength(password string) (bool, []string) {
	var violations []string

	if len(password) < h.policy.MinLength {
		violations = append(violations,
			fmt.Sprintf("must be at least %d characters long", h.policy.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if h.policy.RequireUpper && !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if h.policy.RequireLower && !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if h.policy.RequireDigit && !hasDigit {
		violations = append(violations, "must contain a digit")
	}
	if h.policy.RequireSpecial && !hasSpecial {
		violations = append(violations, "must contain a special character")
	}

	return len(violations) == 0, violations
}
