package domain

import "time"

// Scope limits what an API token may do
type Scope string

const (
	// ScopeRead allows reading status, queue, records and analytics
	ScopeRead Scope = "read"
	// ScopeWrite additionally allows mutations, drains and imports
	ScopeWrite Scope = "write"
)

// IsValid reports whether the scope is known
func (s Scope) IsValid() bool {
	return s == ScopeRead || s == ScopeWrite
}

// Allows reports whether a token with scope s may perform an action needing required
func (s Scope) Allows(required Scope) bool {
	if s == ScopeWrite {
		return true
	}
	return s == required
}

// TokenClaims represents the local API token payload
type TokenClaims struct {
	Subject   string    `json:"sub"`
	Scope     Scope     `json:"scope"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// AuthContext identifies the caller of a local API request
type AuthContext struct {
	Subject string `json:"subject"`
	Scope   Scope  `json:"scope"`
}

// CanWrite reports whether the caller may mutate state
func (a *AuthContext) CanWrite() bool {
	return a.Scope.Allows(ScopeWrite)
}
