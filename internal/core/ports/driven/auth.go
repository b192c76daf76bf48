package driven

import "github.com/custodia-labs/agrolink-core/internal/core/domain"

// AuthAdapter signs and verifies local API tokens.
type AuthAdapter interface {
	// GenerateToken signs claims into a bearer token
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken verifies a bearer token and returns its claims.
	// Returns domain.ErrUnauthorized for any invalid or expired token.
	ParseToken(token string) (*domain.TokenClaims, error)
}
