package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Scope limits what a token holder may do through the HTTP bridge.
type Scope string

const (
	// ScopeRead allows status, journal and message stream reads.
	ScopeRead Scope = "read"
	// ScopeWrite additionally allows publish, subscribe and unsubscribe.
	ScopeWrite Scope = "write"
)

// defaultTTL applies when GenerateToken is given a non-positive lifetime.
const defaultTTL = time.Hour

var (
	// ErrTokenInvalid covers bad signatures, wrong algorithms and missing claims.
	ErrTokenInvalid = errors.New("auth: invalid token")
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth: token has expired")
	// ErrInsufficientScope is returned by Claims.Require.
	ErrInsufficientScope = errors.New("auth: insufficient scope")
)

// Claims are the JWT claims carried by bridge tokens.
type Claims struct {
	jwt.RegisteredClaims
	Scope Scope `json:"scope"`
}

// Allows reports whether the claims permit an action needing want.
func (c *Claims) Allows(want Scope) bool {
	switch c.Scope {
	case ScopeWrite:
		return true
	case ScopeRead:
		return want == ScopeRead
	default:
		return false
	}
}

// Require returns ErrInsufficientScope unless the claims permit want.
func (c *Claims) Require(want Scope) error {
	if !c.Allows(want) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientScope, want, c.Scope)
	}
	return nil
}

// GenerateToken signs an HS256 token for subject.
func GenerateToken(subject string, scope Scope, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: empty signing secret")
	}
	if scope != ScopeRead && scope != ScopeWrite {
		return "", fmt.Errorf("auth: unknown scope %q", scope)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Scope: scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies signature, algorithm and expiry and returns the claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Scope != ScopeRead && claims.Scope != ScopeWrite {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrTokenInvalid, claims.Scope)
	}
	return claims, nil
}
