package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/skillboard/internal/apperror"
)

func TestPasswordService_Hash(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"demo password", "password123", false},
		{"minimum length", "abc123", false},
		{"bcrypt limit", strings.Repeat("a", MaxPasswordLength), false},
		{"unicode", "пароль-密码", false},
		{"too short", "12345", true},
		{"over bcrypt limit", strings.Repeat("a", MaxPasswordLength+1), true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := ps.Hash(tt.password)
			if tt.wantErr {
				require.ErrorIs(t, err, apperror.ErrValidation)
				var appErr *apperror.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, "password", appErr.Field)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(hash, "$2"), "not a bcrypt hash: %q", hash)
			assert.NoError(t, ps.Verify(hash, tt.password))
		})
	}
}

func TestPasswordService_HashIsSalted(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)

	a, err := ps.Hash("same-password")
	require.NoError(t, err)
	b, err := ps.Hash("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestPasswordService_Verify(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)
	hash, err := ps.Hash("correct-horse")
	require.NoError(t, err)

	assert.NoError(t, ps.Verify(hash, "correct-horse"))
	assert.ErrorIs(t, ps.Verify(hash, "wrong-horse"), ErrInvalidPassword)
	assert.ErrorIs(t, ps.Verify(hash, ""), ErrInvalidPassword)

	// Bad data in the users table is not a failed login.
	err = ps.Verify("not-a-bcrypt-hash", "correct-horse")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidPassword))
}

func TestPasswordService_CompareDummy(t *testing.T) {
	ps := NewPasswordServiceForTest(bcrypt.MinCost)

	assert.ErrorIs(t, ps.CompareDummy("password123"), ErrInvalidPassword)
	assert.ErrorIs(t, ps.CompareDummy("skillboard-no-such-account"), ErrInvalidPassword)
	assert.NotEmpty(t, ps.dummy)
}
