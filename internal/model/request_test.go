package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterRequestValidate(t *testing.T) {
	t.Parallel()

	valid := RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "s3cret-pass"}
	require.NoError(t, valid.Validate())

	t.Run("short name", func(t *testing.T) {
		req := valid
		req.Name = "A"
		err := req.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "name")
	})

	t.Run("bad email", func(t *testing.T) {
		req := valid
		req.Email = "not-an-email"
		err := req.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "email")
	})

	t.Run("short password", func(t *testing.T) {
		req := valid
		req.Password = "short"
		err := req.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "password")
	})

	t.Run("password longer than bcrypt accepts", func(t *testing.T) {
		req := valid
		req.Password = strings.Repeat("x", 73)
		require.Error(t, req.Validate())
	})

	t.Run("multibyte password over 72 bytes", func(t *testing.T) {
		req := valid
		req.Password = strings.Repeat("é", 40)
		err := req.Validate()
		require.Error(t, err)
		require.Contains(t, err.Error(), "password")
	})

	t.Run("multibyte password within 72 bytes", func(t *testing.T) {
		req := valid
		req.Password = strings.Repeat("é", 36)
		require.NoError(t, req.Validate())
	})
}

func TestResetAndChangePasswordValidate(t *testing.T) {
	t.Parallel()

	require.Error(t, ResetPasswordRequest{Token: "", Password: "long-enough"}.Validate())
	require.Error(t, ResetPasswordRequest{Token: "abc", Password: "short"}.Validate())
	require.NoError(t, ResetPasswordRequest{Token: "abc", Password: "long-enough"}.Validate())
	require.Error(t, ResetPasswordRequest{Token: "abc", Password: strings.Repeat("é", 40)}.Validate())

	require.Error(t, ChangePasswordRequest{CurrentPassword: "", NewPassword: "long-enough"}.Validate())
	require.NoError(t, ChangePasswordRequest{CurrentPassword: "x", NewPassword: "long-enough"}.Validate())
	require.Error(t, ChangePasswordRequest{CurrentPassword: "x", NewPassword: strings.Repeat("é", 40)}.Validate())
}

func TestUserSafeDropsSecrets(t *testing.T) {
	t.Parallel()

	token := "refresh"
	hash := "reset-hash"
	u := User{
		ID:                     "u1",
		Email:                  "ana@example.com",
		PasswordHash:           "$2a$12$...",
		Role:                   RoleUser,
		RefreshToken:           &token,
		PasswordResetTokenHash: &hash,
	}

	safe := u.Safe()
	require.Equal(t, "u1", safe.ID)
	require.Equal(t, Identity{UserID: "u1", Email: "ana@example.com", Role: RoleUser}, u.Identity())
}
