package repository

import (
	"context"
	"sync"
	"time"

	"go-saas-auth/internal/model"
)

// MemoryUserRepository keeps users in process memory. Returned users are
// copies; mutating them never changes the stored record.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*model.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[u.ID]; exists {
		return model.ErrUserAlreadyExists
	}
	for _, existing := range r.users {
		if existing.DeletedAt == nil && existing.Email == u.Email {
			return model.ErrUserAlreadyExists
		}
	}

	stored := cloneUser(u)
	stored.RefreshToken = nil
	stored.PasswordResetTokenHash = nil
	stored.PasswordResetExpires = nil
	stored.DeletedAt = nil
	r.users[u.ID] = &stored
	return nil
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.live(id)
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return cloneUser(*u), nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	return r.findFirst(func(u *model.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) FindByResetTokenHash(_ context.Context, hash string) (model.User, error) {
	return r.findFirst(func(u *model.User) bool {
		return u.PasswordResetTokenHash != nil && *u.PasswordResetTokenHash == hash
	})
}

func (r *MemoryUserRepository) findFirst(match func(*model.User) bool) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.DeletedAt == nil && match(u) {
			return cloneUser(*u), nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (r *MemoryUserRepository) SetRefreshToken(_ context.Context, userID string, token *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.live(userID); ok {
		u.RefreshToken = cloneString(token)
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *MemoryUserRepository) RotateRefreshToken(_ context.Context, userID string, presented string, next string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.live(userID)
	if !ok || !u.IsActive || u.RefreshToken == nil || *u.RefreshToken != presented {
		return false, nil
	}
	u.RefreshToken = &next
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, userID string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.live(userID)
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryUserRepository) SetPasswordReset(_ context.Context, userID string, tokenHash string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.live(userID)
	if !ok {
		return model.ErrUserNotFound
	}
	expiresUTC := expires.UTC()
	u.PasswordResetTokenHash = &tokenHash
	u.PasswordResetExpires = &expiresUTC
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryUserRepository) CompletePasswordReset(_ context.Context, userID string, tokenHash string, passwordHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.live(userID)
	if !ok || u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != tokenHash {
		return false, nil
	}
	u.PasswordHash = passwordHash
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpires = nil
	u.RefreshToken = nil
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryUserRepository) SoftDelete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.live(userID)
	if !ok {
		return model.ErrUserNotFound
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	u.RefreshToken = nil
	u.UpdatedAt = now
	return nil
}

// live must be called with mu held.
func (r *MemoryUserRepository) live(id string) (*model.User, bool) {
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, false
	}
	return u, true
}

func cloneUser(u model.User) model.User {
	out := u
	out.RefreshToken = cloneString(u.RefreshToken)
	out.PasswordResetTokenHash = cloneString(u.PasswordResetTokenHash)
	out.PasswordResetExpires = cloneTime(u.PasswordResetExpires)
	out.DeletedAt = cloneTime(u.DeletedAt)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
