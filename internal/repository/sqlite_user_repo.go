package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-saas-auth/internal/model"
)

// SQLiteUserRepository stores timestamps as unix milliseconds.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

func (r *SQLiteUserRepository) Create(ctx context.Context, u model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.IsActive, toMillis(u.CreatedAt), toMillis(u.UpdatedAt))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return model.ErrUserAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	return r.findOne(ctx, "find user by id",
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
}

func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	return r.findOne(ctx, "find user by email",
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email)
}

func (r *SQLiteUserRepository) FindByResetTokenHash(ctx context.Context, hash string) (model.User, error) {
	return r.findOne(ctx, "find user by reset token",
		`SELECT `+userColumns+` FROM users WHERE password_reset_token_hash = ? AND deleted_at IS NULL`, hash)
}

func (r *SQLiteUserRepository) findOne(ctx context.Context, op string, query string, arg string) (model.User, error) {
	var (
		u                       model.User
		refreshToken, resetHash sql.NullString
		resetExpires, deletedAt sql.NullInt64
		createdAt, updatedAt    int64
	)

	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &refreshToken,
			&resetHash, &resetExpires, &createdAt, &updatedAt, &deletedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%s: %w", op, err)
	}

	u.RefreshToken = nullString(refreshToken)
	u.PasswordResetTokenHash = nullString(resetHash)
	u.PasswordResetExpires = nullMillis(resetExpires)
	u.DeletedAt = nullMillis(deletedAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *SQLiteUserRepository) SetRefreshToken(ctx context.Context, userID string, token *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		token, nowMillis(), userID)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepository) RotateRefreshToken(ctx context.Context, userID string, presented string, next string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = ?, updated_at = ?
		 WHERE id = ? AND refresh_token = ? AND is_active = 1 AND deleted_at IS NULL`,
		next, nowMillis(), userID, presented)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, userID string, passwordHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, nowMillis(), userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteUserRepository) SetPasswordReset(ctx context.Context, userID string, tokenHash string, expires time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_reset_token_hash = ?, password_reset_expires = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		tokenHash, toMillis(expires), nowMillis(), userID)
	if err != nil {
		return fmt.Errorf("set password reset: %w", err)
	}
	return requireRow(res)
}

func (r *SQLiteUserRepository) CompletePasswordReset(ctx context.Context, userID string, tokenHash string, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET password_hash = ?, password_reset_token_hash = NULL, password_reset_expires = NULL,
		     refresh_token = NULL, updated_at = ?
		 WHERE id = ? AND password_reset_token_hash = ? AND deleted_at IS NULL`,
		passwordHash, nowMillis(), userID, tokenHash)
	if err != nil {
		return false, fmt.Errorf("complete password reset: %w", err)
	}
	return affectedOne(res)
}

func (r *SQLiteUserRepository) SoftDelete(ctx context.Context, userID string) error {
	now := nowMillis()
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ?, refresh_token = NULL, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		now, now, userID)
	if err != nil {
		return fmt.Errorf("soft delete user: %w", err)
	}
	return requireRow(res)
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func requireRow(res sql.Result) error {
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrUserNotFound
	}
	return nil
}

// modernc reports constraint failures only through the message text.
func isSQLiteUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nowMillis() int64 { return toMillis(time.Now()) }

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
