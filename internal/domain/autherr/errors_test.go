package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	locked := fmt.Errorf("login: %w", &AccountLockedError{Minutes: 7})
	assert.ErrorIs(t, locked, ErrAccountLocked)
	m, ok := LockedMinutes(locked)
	assert.True(t, ok)
	assert.Equal(t, 7, m)

	nf := NotFound("user", "42")
	assert.ErrorIs(t, nf, ErrNotFound)
	assert.Equal(t, "user 42 not found", nf.Error())

	weak := &WeakPasswordError{Reasons: []string{"min_length"}}
	assert.ErrorIs(t, weak, ErrWeakPassword)

	te := &TokenError{Reason: ReasonExpired, Err: ErrTokenExpired}
	assert.ErrorIs(t, te, ErrTokenExpired)
	assert.False(t, errors.Is(te, ErrTokenMalformed))
	assert.Equal(t, ReasonExpired, ReasonOf(fmt.Errorf("wrap: %w", te)))
	assert.Equal(t, TokenReason(""), ReasonOf(errors.New("other")))
}
