// Package identity defines the (role, username) key that uniquely
// identifies an enrolled credential.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Role is one of the fixed set of roles a user can enroll under.
type Role string

const (
	RoleDoctor       Role = "doctor"
	RolePatient      Role = "patient"
	RoleReceptionist Role = "receptionist"
	RolePharmacist   Role = "pharmacist"
)

// ErrInvalidKey marks role or username validation failures so callers
// can report them as bad input rather than internal errors.
var ErrInvalidKey = errors.New("invalid identity")

// Key is the primary key of a credential record. The same person may
// enroll separately under different roles; keys are never derived from
// the signature itself.
type Key struct {
	Role     Role
	Username string
}

// ParseRole validates a role string against the allowed set.
func ParseRole(s string, allowed []Role) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range allowed {
		if r == a {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown role %q (allowed: %s)", ErrInvalidKey, s, JoinRoles(allowed))
}

// JoinRoles renders a role list for error messages and CLI help.
func JoinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeUsername canonicalizes a username before it is used as part
// of an identity key (trim, lowercase, no diacritics). "Ana" and "ana"
// address the same credential.
func NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = RemoveDiacritics(username)
	return strings.ToLower(username)
}

// NewKey builds a validated identity key from raw role and username input.
func NewKey(role, username string, allowed []Role) (Key, error) {
	r, err := ParseRole(role, allowed)
	if err != nil {
		return Key{}, err
	}
	u := NormalizeUsername(username)
	if u == "" {
		return Key{}, fmt.Errorf("%w: username must not be empty", ErrInvalidKey)
	}
	if strings.ContainsAny(u, "/\\") {
		return Key{}, fmt.Errorf("%w: username %q contains path separators", ErrInvalidKey, username)
	}
	return Key{Role: r, Username: u}, nil
}

// String renders the key as role/username.
func (k Key) String() string {
	return string(k.Role) + "/" + k.Username
}
