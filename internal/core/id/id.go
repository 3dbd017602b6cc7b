// Package id provides UUIDv7 generation for batches and command handles.
// UUIDv7 is time-ordered, so batch ids sort by creation time.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// ShortLen is the length of the short form.
const ShortLen = 8

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// New generates a new UUIDv7.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		// Random source failure; fall back to v4.
		return uuid.New()
	}
	return v
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Short returns the last eight hex characters, used in console output and
// rationale text. The leading characters of a UUIDv7 are its timestamp and
// repeat across ids minted in the same minute; the tail is random.
func Short(v ID) string {
	s := v.String()
	return s[len(s)-ShortLen:]
}

// MatchesRef reports whether ref names v: a prefix of the short form, or for
// anything longer than the short form, a prefix of the full id.
func MatchesRef(v ID, ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return false
	}
	if len(ref) <= ShortLen {
		return strings.HasPrefix(Short(v), ref)
	}
	return strings.HasPrefix(v.String(), ref)
}
