package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-saas-auth/internal/event"
	"go-saas-auth/internal/mail"
	"go-saas-auth/internal/model"
	"go-saas-auth/internal/security"
	"go-saas-auth/pkg/apierror"
)

const (
	DefaultResetTTL    = time.Hour
	DefaultMailTimeout = 10 * time.Second

	msgInvalidCredentials    = "invalid credentials"
	msgInvalidRefreshToken   = "invalid or expired refresh token"
	msgEmailInUse            = "email already in use"
	msgUserNotFound          = "user not found"
	msgWrongCurrentPassword  = "current password is incorrect"
	msgInvalidResetToken     = "invalid or expired token"
	msgExpiredResetToken     = "token expired, request a new reset link"
	dummyPasswordForTimingEq = "timing-equalizer-password"
)

// CredentialStore persists user credentials. Implementations live in
// internal/repository.
type CredentialStore interface {
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

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) error
}

type TokenIssuer interface {
	Issue(identity model.Identity) (model.TokenPair, error)
	VerifyRefresh(token string) (model.Identity, error)
}

type SessionConfig struct {
	ResetTTL    time.Duration
	MailTimeout time.Duration
	FrontendURL string
	Now         func() time.Time
}

// SessionService drives the per-user session state machine: registration,
// login, refresh rotation, logout and both password flows.
type SessionService struct {
	store    CredentialStore
	hasher   PasswordHasher
	tokens   TokenIssuer
	notifier mail.Notifier
	bus      event.Bus

	resetTTL    time.Duration
	mailTimeout time.Duration
	frontendURL string
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string

	pending sync.WaitGroup
}

func NewSessionService(store CredentialStore, hasher PasswordHasher, tokens TokenIssuer, notifier mail.Notifier, bus event.Bus, cfg SessionConfig) *SessionService {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = DefaultMailTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &SessionService{
		store:       store,
		hasher:      hasher,
		tokens:      tokens,
		notifier:    notifier,
		bus:         bus,
		resetTTL:    cfg.ResetTTL,
		mailTimeout: cfg.MailTimeout,
		frontendURL: cfg.FrontendURL,
		now:         cfg.Now,
	}
}

func (s *SessionService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResult, error) {
	if err := req.Validate(); err != nil {
		return model.AuthResult{}, apierror.Validation(err.Error())
	}

	_, err := s.store.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		return model.AuthResult{}, apierror.Validation(msgEmailInUse)
	case !errors.Is(err, model.ErrUserNotFound):
		return model.AuthResult{}, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthResult{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration for the same email.
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return model.AuthResult{}, apierror.Validation(msgEmailInUse)
		}
		return model.AuthResult{}, err
	}

	tokens, err := s.startSession(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.publish(event.TypeUserRegistered, user.ID)
	return model.AuthResult{User: user.Safe(), Tokens: tokens}, nil
}

// Login answers every failure with the same message so callers cannot tell
// an unknown email from a wrong password or a disabled account.
func (s *SessionService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResult, error) {
	if err := req.Validate(); err != nil {
		return model.AuthResult{}, apierror.Validation(err.Error())
	}

	user, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			return model.AuthResult{}, fmt.Errorf("find user: %w", err)
		}
		s.burnCompare(req.Password)
		return model.AuthResult{}, apierror.Unauthorized(msgInvalidCredentials)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil || !user.IsActive {
		return model.AuthResult{}, apierror.Unauthorized(msgInvalidCredentials)
	}

	tokens, err := s.startSession(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.publish(event.TypeSessionStarted, user.ID)
	return model.AuthResult{User: user.Safe(), Tokens: tokens}, nil
}

// Refresh rotates the refresh token. The presented token must be the one
// currently stored; the swap itself is a compare-and-swap in the store, so
// of two concurrent refreshes with the same token at most one succeeds.
func (s *SessionService) Refresh(ctx context.Context, req model.RefreshRequest) (model.TokenPair, error) {
	if err := req.Validate(); err != nil {
		return model.TokenPair{}, apierror.Validation(err.Error())
	}

	identity, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return model.TokenPair{}, apierror.Unauthorized(msgInvalidRefreshToken)
	}

	user, err := s.store.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.TokenPair{}, apierror.Unauthorized(msgInvalidRefreshToken)
		}
		return model.TokenPair{}, fmt.Errorf("find user: %w", err)
	}

	if !user.IsActive || user.RefreshToken == nil ||
		subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(req.RefreshToken)) != 1 {
		return model.TokenPair{}, apierror.Unauthorized(msgInvalidRefreshToken)
	}

	tokens, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return model.TokenPair{}, err
	}

	swapped, err := s.store.RotateRefreshToken(ctx, user.ID, req.RefreshToken, tokens.RefreshToken)
	if err != nil {
		return model.TokenPair{}, err
	}
	if !swapped {
		return model.TokenPair{}, apierror.Unauthorized(msgInvalidRefreshToken)
	}

	s.publish(event.TypeSessionRefreshed, user.ID)
	return tokens, nil
}

// Logout clears the stored refresh token. Calling it twice is harmless.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	if err := s.store.SetRefreshToken(ctx, userID, nil); err != nil {
		return err
	}

	s.publish(event.TypeSessionEnded, userID)
	return nil
}

func (s *SessionService) Profile(ctx context.Context, userID string) (model.SafeUser, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return model.SafeUser{}, apierror.NotFound(msgUserNotFound)
		}
		return model.SafeUser{}, fmt.Errorf("find user: %w", err)
	}

	return user.Safe(), nil
}

// ChangePassword keeps the current session alive.
func (s *SessionService) ChangePassword(ctx context.Context, userID string, req model.ChangePasswordRequest) error {
	if err := req.Validate(); err != nil {
		return apierror.Validation(err.Error())
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return apierror.NotFound(msgUserNotFound)
		}
		return fmt.Errorf("find user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.CurrentPassword); err != nil {
		return apierror.Unauthorized(msgWrongCurrentPassword)
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	if err := s.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return apierror.NotFound(msgUserNotFound)
		}
		return err
	}

	s.publish(event.TypePasswordChanged, user.ID)
	return nil
}

// ForgotPassword returns nil for unknown emails as well. The reset mail is
// sent in the background; use Wait to block until it is out.
func (s *SessionService) ForgotPassword(ctx context.Context, req model.ForgotPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return apierror.Validation(err.Error())
	}

	user, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	raw, hash, err := security.NewResetToken()
	if err != nil {
		return err
	}

	expires := s.now().UTC().Add(s.resetTTL)
	if err := s.store.SetPasswordReset(ctx, user.ID, hash, expires); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil
		}
		return err
	}

	s.dispatchResetMail(ctx, user, mail.ResetLink(s.frontendURL, raw))
	s.publish(event.TypePasswordResetRequested, user.ID)
	return nil
}

// ResetPassword consumes a reset ticket and revokes the stored refresh token
// so every device has to log in again.
func (s *SessionService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	if err := req.Validate(); err != nil {
		return apierror.Validation(err.Error())
	}

	tokenHash := security.HashResetToken(req.Token)
	user, err := s.store.FindByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return apierror.Validation(msgInvalidResetToken)
		}
		return fmt.Errorf("find user by reset token: %w", err)
	}

	if user.PasswordResetExpires == nil || !s.now().Before(*user.PasswordResetExpires) {
		return apierror.Validation(msgExpiredResetToken)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return err
	}

	consumed, err := s.store.CompletePasswordReset(ctx, user.ID, tokenHash, hash)
	if err != nil {
		return err
	}
	if !consumed {
		return apierror.Validation(msgInvalidResetToken)
	}

	s.publish(event.TypePasswordResetCompleted, user.ID)
	return nil
}

// DeleteAccount soft-deletes the user and ends their session.
func (s *SessionService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.SoftDelete(ctx, userID); err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return apierror.NotFound(msgUserNotFound)
		}
		return err
	}

	s.publish(event.TypeUserDeleted, userID)
	return nil
}

// Wait blocks until every background mail dispatch has finished.
func (s *SessionService) Wait() {
	s.pending.Wait()
}

func (s *SessionService) startSession(ctx context.Context, user model.User) (model.TokenPair, error) {
	tokens, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.store.SetRefreshToken(ctx, user.ID, &tokens.RefreshToken); err != nil {
		return model.TokenPair{}, err
	}

	return tokens, nil
}

func (s *SessionService) dispatchResetMail(ctx context.Context, user model.User, link string) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		mailCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mailTimeout)
		defer cancel()

		if err := s.notifier.SendPasswordReset(mailCtx, user.Email, link); err != nil {
			slog.ErrorContext(mailCtx, "password reset mail failed", "user_id", user.ID, "error", err)
		}
	}()
}

// burnCompare spends roughly one bcrypt comparison so unknown emails take as
// long to reject as known ones.
func (s *SessionService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPasswordForTimingEq)
		if err != nil {
			slog.Warn("could not prepare timing equalizer hash", "error", err)
			return
		}
		s.dummyHash = hash
	})

	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

func (s *SessionService) publish(t event.Type, userID string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.New(t, userID, s.now()))
}
