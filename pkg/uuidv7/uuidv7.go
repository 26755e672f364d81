// Package uuidv7 issues time-ordered identifiers (RFC 9562 UUIDv7) for
// studies, forms, submissions and documents. Time ordering keeps
// index pages hot for the mostly-append workloads the stores see.
package uuidv7

import (
	"github.com/google/uuid"
)

// New returns a UUIDv7.
func New() (uuid.UUID, error) {
	return uuid.NewV7()
}

// NewString returns a UUIDv7 string.
func NewString() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// MustNewString panics when entropy is unavailable. For seeds and
// tests only; request paths use NewString.
func MustNewString() string {
	s, err := NewString()
	if err != nil {
		panic(err)
	}
	return s
}
