package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsUniqueConstraintError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), false},
		{errors.New(`ERROR: duplicate key value violates unique constraint "idx_users_username"`), true},
		{fmt.Errorf("create: %w", gorm.ErrDuplicatedKey), true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsUniqueConstraintError(tt.err), tt.err)
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	t.Parallel()
	_, err := Open(Options{DSN: "  "}, zerolog.Nop())
	require.Error(t, err)
}

func TestResetPasswordRejectsShortPassword(t *testing.T) {
	t.Parallel()
	require.ErrorIs(t, ResetPassword(nil, "admin", "123"), ErrWeakPassword)
}
