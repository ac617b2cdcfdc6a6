package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go-saas-auth/internal/model"
)

type userStore interface {
	Create(ctx context.Context, u model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByResetTokenHash(ctx context.Context, hash string) (model.User, error)
	SetRefreshToken(ctx context.Context, userID string, token *string) error
	RotateRefreshToken(ctx context.Context, userID string, presented string, next string) (bool, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	SetPasswordReset(ctx context.Context, userID string, tokenHash string, expires time.Time) error
	CompletePasswordReset(ctx context.Context, userID string, tokenHash string, passwordHash string) (bool, error)
	SoftDelete(ctx context.Context, userID string) error
}

func newContractUser(email string) model.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return model.User{
		ID:           uuid.NewString(),
		Name:         "Ana Souza",
		Email:        email,
		PasswordHash: "$2a$04$hash",
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func strPtr(s string) *string { return &s }

// runUserStoreContract exercises the behavior every credential store adapter
// must share. newStore must return an empty store.
func runUserStoreContract(t *testing.T, newStore func(t *testing.T) userStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and find", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		require.NoError(t, store.Create(ctx, u))

		byEmail, err := store.FindByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)
		require.Equal(t, u.Name, byEmail.Name)
		require.Equal(t, u.PasswordHash, byEmail.PasswordHash)
		require.Equal(t, model.RoleUser, byEmail.Role)
		require.True(t, byEmail.IsActive)
		require.Nil(t, byEmail.RefreshToken)
		require.Nil(t, byEmail.PasswordResetTokenHash)
		require.Nil(t, byEmail.PasswordResetExpires)
		require.Nil(t, byEmail.DeletedAt)
		require.WithinDuration(t, u.CreatedAt, byEmail.CreatedAt, time.Millisecond)

		byID, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Email, byID.Email)
	})

	t.Run("email lookup is exact", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newContractUser("ana@example.com")))

		_, err := store.FindByEmail(ctx, "ANA@example.com")
		require.ErrorIs(t, err, model.ErrUserNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, newContractUser("ana@example.com")))

		err := store.Create(ctx, newContractUser("ana@example.com"))
		require.ErrorIs(t, err, model.ErrUserAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		store := newStore(t)

		_, err := store.FindByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, model.ErrUserNotFound)
		_, err = store.FindByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, model.ErrUserNotFound)
		_, err = store.FindByResetTokenHash(ctx, "deadbeef")
		require.ErrorIs(t, err, model.ErrUserNotFound)

		require.NoError(t, store.SetRefreshToken(ctx, uuid.NewString(), nil))
		require.ErrorIs(t, store.UpdatePassword(ctx, uuid.NewString(), "x"), model.ErrUserNotFound)
		require.ErrorIs(t, store.SetPasswordReset(ctx, uuid.NewString(), "h", time.Now()), model.ErrUserNotFound)
		require.ErrorIs(t, store.SoftDelete(ctx, uuid.NewString()), model.ErrUserNotFound)
	})

	t.Run("set and clear refresh token", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		require.NoError(t, store.Create(ctx, u))

		require.NoError(t, store.SetRefreshToken(ctx, u.ID, strPtr("rt-1")))
		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.RefreshToken)
		require.Equal(t, "rt-1", *got.RefreshToken)

		require.NoError(t, store.SetRefreshToken(ctx, u.ID, nil))
		got, err = store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.Nil(t, got.RefreshToken)
	})

	t.Run("rotate refresh token", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		require.NoError(t, store.Create(ctx, u))

		swapped, err := store.RotateRefreshToken(ctx, u.ID, "rt-1", "rt-2")
		require.NoError(t, err)
		require.False(t, swapped, "nothing stored yet")

		require.NoError(t, store.SetRefreshToken(ctx, u.ID, strPtr("rt-1")))

		swapped, err = store.RotateRefreshToken(ctx, u.ID, "rt-1", "rt-2")
		require.NoError(t, err)
		require.True(t, swapped)

		swapped, err = store.RotateRefreshToken(ctx, u.ID, "rt-1", "rt-3")
		require.NoError(t, err)
		require.False(t, swapped, "stale token must not rotate")

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "rt-2", *got.RefreshToken)
	})

	t.Run("rotate refuses inactive user", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		u.IsActive = false
		require.NoError(t, store.Create(ctx, u))
		require.NoError(t, store.SetRefreshToken(ctx, u.ID, strPtr("rt-1")))

		swapped, err := store.RotateRefreshToken(ctx, u.ID, "rt-1", "rt-2")
		require.NoError(t, err)
		require.False(t, swapped)
	})

	t.Run("concurrent rotation has one winner", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		require.NoError(t, store.Create(ctx, u))
		require.NoError(t, store.SetRefreshToken(ctx, u.ID, strPtr("rt-0")))

		const workers = 8
		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				swapped, err := store.RotateRefreshToken(ctx, u.ID, "rt-0", fmt.Sprintf("rt-next-%d", i))
				if err == nil && swapped {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), wins.Load())
	})

	t.Run("update password", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		require.NoError(t, store.Create(ctx, u))
		require.NoError(t, store.SetRefreshToken(ctx, u.ID, strPtr("rt-1")))

		require.NoError(t, store.UpdatePassword(ctx, u.ID, "new-hash"))

		got, err := store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "new-hash", got.PasswordHash)
		require.Equal(t, "rt-1", *got.RefreshToken)
	})

	t.Run("password reset ticket", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		require.NoError(t, store.Create(ctx, u))
		require.NoError(t, store.SetRefreshToken(ctx, u.ID, strPtr("rt-1")))

		expires := time.Now().Add(time.Hour).UTC()
		require.NoError(t, store.SetPasswordReset(ctx, u.ID, "hash-1", expires))

		got, err := store.FindByResetTokenHash(ctx, "hash-1")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.NotNil(t, got.PasswordResetExpires)
		require.WithinDuration(t, expires, *got.PasswordResetExpires, time.Millisecond)

		// A newer ticket replaces the old one.
		require.NoError(t, store.SetPasswordReset(ctx, u.ID, "hash-2", expires))
		_, err = store.FindByResetTokenHash(ctx, "hash-1")
		require.ErrorIs(t, err, model.ErrUserNotFound)

		ok, err := store.CompletePasswordReset(ctx, u.ID, "hash-1", "new-hash")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = store.CompletePasswordReset(ctx, u.ID, "hash-2", "new-hash")
		require.NoError(t, err)
		require.True(t, ok)

		got, err = store.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "new-hash", got.PasswordHash)
		require.Nil(t, got.PasswordResetTokenHash)
		require.Nil(t, got.PasswordResetExpires)
		require.Nil(t, got.RefreshToken)

		ok, err = store.CompletePasswordReset(ctx, u.ID, "hash-2", "other-hash")
		require.NoError(t, err)
		require.False(t, ok, "ticket is single use")
	})

	t.Run("soft delete", func(t *testing.T) {
		store := newStore(t)
		u := newContractUser("ana@example.com")
		require.NoError(t, store.Create(ctx, u))
		require.NoError(t, store.SetRefreshToken(ctx, u.ID, strPtr("rt-1")))
		require.NoError(t, store.SetPasswordReset(ctx, u.ID, "hash-1", time.Now().Add(time.Hour)))

		require.NoError(t, store.SoftDelete(ctx, u.ID))

		_, err := store.FindByID(ctx, u.ID)
		require.ErrorIs(t, err, model.ErrUserNotFound)
		_, err = store.FindByEmail(ctx, u.Email)
		require.ErrorIs(t, err, model.ErrUserNotFound)
		_, err = store.FindByResetTokenHash(ctx, "hash-1")
		require.ErrorIs(t, err, model.ErrUserNotFound)

		swapped, err := store.RotateRefreshToken(ctx, u.ID, "rt-1", "rt-2")
		require.NoError(t, err)
		require.False(t, swapped)

		// The email is free again.
		require.NoError(t, store.Create(ctx, newContractUser(u.Email)))
	})
}
