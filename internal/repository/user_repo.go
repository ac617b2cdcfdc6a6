package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"go-saas-auth/internal/model"
)

const pgUniqueViolation = "23505"

const userColumns = `id, name, email, password_hash, role, is_active, refresh_token,
	password_reset_token_hash, password_reset_expires, created_at, updated_at, deleted_at`

// UserRepository is the Postgres credential store.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.ErrUserAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, "find user by id",
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, "find user by email",
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email)
}

func (r *UserRepository) FindByResetTokenHash(ctx context.Context, hash string) (model.User, error) {
	return r.findOne(ctx, "find user by reset token",
		`SELECT `+userColumns+` FROM users WHERE password_reset_token_hash = $1 AND deleted_at IS NULL`, hash)
}

func (r *UserRepository) findOne(ctx context.Context, op string, query string, arg string) (model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.RefreshToken,
			&u.PasswordResetTokenHash, &u.PasswordResetExpires, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SetRefreshToken overwrites the stored refresh token; nil clears it.
func (r *UserRepository) SetRefreshToken(ctx context.Context, userID string, token *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		userID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

// RotateRefreshToken replaces presented with next only if presented is still
// the stored token. It reports whether the swap happened.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, userID string, presented string, next string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token = $3, updated_at = $4
		 WHERE id = $1 AND refresh_token = $2 AND is_active AND deleted_at IS NULL`,
		userID, presented, next, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) SetPasswordReset(ctx context.Context, userID string, tokenHash string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_reset_token_hash = $2, password_reset_expires = $3, updated_at = $4
		 WHERE id = $1 AND deleted_at IS NULL`,
		userID, tokenHash, expires.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set password reset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

// CompletePasswordReset sets the new password and clears the reset ticket and
// refresh token, but only while tokenHash is still the stored ticket.
func (r *UserRepository) CompletePasswordReset(ctx context.Context, userID string, tokenHash string, passwordHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET password_hash = $3, password_reset_token_hash = NULL, password_reset_expires = NULL,
		     refresh_token = NULL, updated_at = $4
		 WHERE id = $1 AND password_reset_token_hash = $2 AND deleted_at IS NULL`,
		userID, tokenHash, passwordHash, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("complete password reset: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *UserRepository) SoftDelete(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET deleted_at = $2, refresh_token = NULL, updated_at = $2
		 WHERE id = $1 AND deleted_at IS NULL`,
		userID, now)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}
