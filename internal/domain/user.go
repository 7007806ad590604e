// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const MaxUserIDLen = 64

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// UserID is an opaque identity issued by the surrounding platform.
// It is stable across connections; the relay never interprets it.
type UserID string

func ValidateIdentity(id UserID) error {
	if len(id) == 0 {
		return ErrIdentityEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrIdentityTooLong
	}
	return nil
}
