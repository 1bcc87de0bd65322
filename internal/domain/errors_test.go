package domain_test

import (
	"errors"
	"testing"

	"github.com/openticket/seat-reservations/internal/domain"
	"github.com/stretchr/testify/assert"
)

// The helpers must produce errors whose sentinel is visible to the
// standard library's errors.Is, not only to cockroachdb/errors' matcher.
func TestSentinelHelpers_StdlibErrorsIs(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{"conflict", domain.Conflictf("seat is already on hold"), domain.ErrConflict, "seat is already on hold"},
		{"not found", domain.NotFoundf("event not found"), domain.ErrNotFound, "event not found"},
		{"forbidden", domain.Forbiddenf("hold belongs to another user"), domain.ErrForbidden, "hold belongs to another user"},
		{"invalid input", domain.InvalidInputf("seconds must be between 1 and %d", 60), domain.ErrInvalidInput, "seconds must be between 1 and 60"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, errors.Is(tc.err, tc.sentinel))
			assert.Contains(t, tc.err.Error(), tc.message)
		})
	}
}

func TestSentinelHelpers_DoNotCrossMatch(t *testing.T) {
	err := domain.Conflictf("seat is already on hold")
	assert.False(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, errors.Is(err, domain.ErrForbidden))
	assert.False(t, errors.Is(err, domain.ErrInvalidInput))
	assert.False(t, errors.Is(err, domain.ErrSerializationFailure))
}
