package models

import (
	"errors"
	"net/url"
	"time"
)

const (
	ExportTokenMinLength = 6
	ExportTokenMaxLength = 64
	MaxQueryStringLength = 4096
)

var (
	ErrMalformedToken       = errors.New("token must be 6-64 characters of [A-Za-z0-9_-]")
	ErrQueryStringTooLong   = errors.New("query string exceeds 4096 bytes")
	ErrQueryStringMalformed = errors.New("query string is not a valid URL query")
)

// ExportToken maps a short subscription token to the query string of a feed.
type ExportToken struct {
	Token       string    `json:"token"`
	QueryString string    `json:"query_string"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidateToken checks the token alphabet and length.
func ValidateToken(token string) error {
	if len(token) < ExportTokenMinLength || len(token) > ExportTokenMaxLength {
		return ErrMalformedToken
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrMalformedToken
		}
	}
	return nil
}

// ValidateQueryString checks the size and syntax of a stored query string.
// A leading "?" is tolerated and stripped.
func ValidateQueryString(raw string) (string, error) {
	if len(raw) > 0 && raw[0] == '?' {
		raw = raw[1:]
	}
	if len(raw) > MaxQueryStringLength {
		return "", ErrQueryStringTooLong
	}
	if _, err := url.ParseQuery(raw); err != nil {
		return "", ErrQueryStringMalformed
	}
	return raw, nil
}
