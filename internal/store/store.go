// Package store defines the credential record and the storage backend
// contract. Backends persist signatures and enrollment metadata; captured
// images and audit records always live on the filesystem.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/facegate/internal/identity"
)

// ErrAlreadyEnrolled is returned when a credential already exists for the key.
// Enrollment never overwrites an existing record.
var ErrAlreadyEnrolled = errors.New("identity already enrolled")

// ErrNotFound is returned when no credential exists for the key.
var ErrNotFound = errors.New("identity not enrolled")

// Credential is one enrolled identity with its face signature.
type Credential struct {
	Key              identity.Key
	Signature        []float32
	RegistrationTime time.Time
	LastLoginTime    *time.Time
}

// Store persists credentials keyed by (role, username).
type Store interface {
	// Enroll creates a credential. Returns ErrAlreadyEnrolled when a
	// record already exists for the key; existing records are never
	// overwritten. Exactly one of N concurrent enrollments with the
	// same key succeeds.
	Enroll(ctx context.Context, cred Credential, image []byte) error

	// Lookup returns the credential for the key, or ErrNotFound.
	Lookup(ctx context.Context, key identity.Key) (*Credential, error)

	// RecordLogin updates the last login time for the key. Best effort
	// from the caller's point of view; a failure never changes an
	// authentication decision.
	RecordLogin(ctx context.Context, key identity.Key, at time.Time) error

	// List returns all enrolled credentials.
	List(ctx context.Context) ([]Credential, error)

	Close() error
}
