package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Each constructor must be recognisable by its sentinel after any amount of
// fmt.Errorf wrapping, because that is all handler.writeError looks at.
func TestKinds(t *testing.T) {
	all := []error{ErrNotFound, ErrValidation, ErrConflict, ErrForbidden, ErrUnauthorized, ErrInvariant, ErrTransient}

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"not found", NotFound("project", "cv37rs3pp9olc6atsptg"), ErrNotFound},
		{"unknown user", UnknownUser("ghost"), ErrNotFound},
		{"validation", ValidationFailed("delta", "delta must not be zero"), ErrValidation},
		{"duplicate badge", Conflict("badge", "u1_mentor"), ErrConflict},
		{"self like", Forbidden("you cannot like your own project"), ErrForbidden},
		{"bad login", Unauthorized("invalid email or password"), ErrUnauthorized},
		{"duplicate in snapshot", InvariantViolation("duplicate user u1"), ErrInvariant},
		{"store timeout", Transient("saving score", context.DeadlineExceeded), ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("ledger: apply: %w", fmt.Errorf("store: %w", tt.err))
			for _, kind := range all {
				assert.Equal(t, kind == tt.kind, errors.Is(wrapped, kind), "errors.Is(%v, %v)", tt.err, kind)
			}
		})
	}
}

func TestTransient_KeepsCause(t *testing.T) {
	err := Transient("loading score", context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "loading score: context deadline exceeded", err.Error())
}

func TestMessagesAndFields(t *testing.T) {
	tests := []struct {
		err       error
		wantMsg   string
		wantField string
	}{
		{NotFound("project", "abc123"), "project not found with id abc123", ""},
		{Conflict("badge", "abc123"), "badge conflict with id abc123", ""},
		{ValidationFailed("note", "note is required"), "note is required", "note"},
		{fmt.Errorf("service: %w", UnknownUser("ghost")), "unknown user ghost", "userId"},
	}
	for _, tt := range tests {
		t.Run(tt.wantMsg, func(t *testing.T) {
			var appErr *AppError
			require.ErrorAs(t, tt.err, &appErr)
			assert.Equal(t, tt.wantMsg, appErr.Message)
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}
}
