package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

// Ensure Adapter implements AuthAdapter
var _ driven.AuthAdapter = (*Adapter)(nil)

const (
	issuer   = "agrolink-core"
	audience = "agrolink-local-api"
)

// ErrEmptySecret is returned when no signing secret is given
var ErrEmptySecret = errors.New("jwt secret must not be empty")

// jwtClaims wraps domain.TokenClaims for JWT compatibility
type jwtClaims struct {
	Scope domain.Scope `json:"scope"`
	jwt.RegisteredClaims
}

// Adapter signs and verifies HS256 tokens for the local API
type Adapter struct {
	jwtSecret []byte
	now       func() time.Time
}

// NewAdapter creates a new auth adapter with the given JWT secret
func NewAdapter(jwtSecret string) (*Adapter, error) {
	if jwtSecret == "" {
		return nil, ErrEmptySecret
	}
	return &Adapter{
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}, nil
}

// GenerateToken creates a signed JWT from domain claims
func (a *Adapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token subject is required", domain.ErrInvalidInput)
	}
	if !claims.Scope.IsValid() {
		return "", fmt.Errorf("%w: unknown scope %q", domain.ErrInvalidInput, claims.Scope)
	}

	jc := jwtClaims{
		Scope: claims.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jc)
	return token.SignedString(a.jwtSecret)
}

// ParseToken validates a JWT and extracts domain claims
func (a *Adapter) ParseToken(tokenString string) (*domain.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return a.jwtSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid || !claims.Scope.IsValid() {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}

	out := &domain.TokenClaims{
		Subject: claims.Subject,
		Scope:   claims.Scope,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
