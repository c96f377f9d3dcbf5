// Package auth issues and verifies the bearer tokens that identify actors.
// Credential checks live with the identity provider; this package only
// trusts what it signed.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/image-annotator/backend/internal/models"
)

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims carried for an actor.
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	Banned bool   `json:"banned,omitempty"`
	jwt.RegisteredClaims
}

// Actor returns the actor the claims identify, or nil for banned users.
func (c *Claims) Actor() *models.Actor {
	if c == nil || c.Banned || c.UserID == "" {
		return nil
	}
	role := models.RoleUser
	if models.Role(c.Role) == models.RoleAdmin {
		role = models.RoleAdmin
	}
	return &models.Actor{ID: c.UserID, Role: role}
}

// IssueToken signs a token for userID with the given role, valid for ttl.
func IssueToken(secret, userID string, role models.Role, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is empty")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies tokenStr and returns its claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// PeekClaims reads the claims of tokenStr without verifying its signature.
// Clients use it to learn who they act as; servers must use ParseToken.
func PeekClaims(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
