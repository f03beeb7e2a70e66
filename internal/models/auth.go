package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access token payload issued by the hosted auth provider.
// The subject carries the user id.
type JWTClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id.
func (c *JWTClaims) UserID() string {
	return c.Subject
}
