package models

import (
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim required by privileged migration endpoints
// (execute, rollback).
const RoleAdmin = "admin"

// TokenClaims is the claim set carried by access tokens this service
// verifies. Token issuance belongs to the auth service; this type only needs
// to round-trip what that service signs.
type TokenClaims struct {
	jwt.RegisteredClaims

	// Role is the caller's role ("therapist", "admin", ...), checked by the
	// rollout gate and the privileged-route middleware.
	Role string `json:"role,omitempty"`
}

// Token wraps a parsed JWT with the identity fields the handlers need.
type Token struct {
	// Token is the underlying parsed JWT. Excluded from JSON because only
	// the compact string form is meaningful outside the process.
	*jwt.Token `json:"-"`

	// UserID is the "sub" claim parsed to int64.
	UserID int64 `json:"-"`

	// Role is the role claim, empty when absent.
	Role string `json:"-"`
}

// UserIDFromClaims extracts and parses the subject claim as an int64 user ID.
func UserIDFromClaims(claims *TokenClaims) (int64, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return 0, fmt.Errorf("error extracting subject from token: %w", err)
	}

	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("error converting subject to user id: %w", err)
	}

	return userID, nil
}
