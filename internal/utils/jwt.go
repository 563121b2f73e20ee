package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled = errors.New("external auth is not configured")
	ErrInvalidToken = errors.New("invalid or expired token")
)

var jwtSecret []byte

// SetJWTSecret installs the external auth provider's HS256 signing secret.
// An empty secret disables bearer-token identities.
func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

// Claims are the access-token claims issued by the external auth provider.
// The user id travels in the standard "sub" claim.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the external auth user id.
func (c *Claims) UserID() string {
	return c.Subject
}

// GenerateToken signs a token the way the auth provider does. The server only
// verifies tokens; this exists for local tooling and tests.
func GenerateToken(userID, email string, expireHours int) (string, error) {
	if len(jwtSecret) == 0 {
		return "", ErrAuthDisabled
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseToken validates an HS256 access token and returns its claims. Tokens
// without a subject are rejected.
func ParseToken(tokenString string) (*Claims, error) {
	if len(jwtSecret) == 0 {
		return nil, ErrAuthDisabled
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
