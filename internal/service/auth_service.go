package service

import (
	"context"
	"errors"

	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/pkg/crypto"
	"github.com/sirupsen/logrus"
)

// AuthService handles account operations
type AuthService struct {
	userRepo *repository.UserRepository
	sessions *SessionService
	log      *logrus.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo *repository.UserRepository, sessions *SessionService, log *logrus.Logger) *AuthService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuthService{
		userRepo: userRepo,
		sessions: sessions,
		log:      log,
	}
}

// RegisterRequest represents the registration request
type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest represents the login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResetPasswordRequest represents the password reset request
type ResetPasswordRequest struct {
	Username        string `json:"username"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

const (
	msgWeakPassword     = "password must be at least 8 characters and contain an upper-case letter, a lower-case letter and a digit"
	msgPasswordMismatch = "passwords do not match"
	msgInvalidUsername  = "username must be 3-64 characters: letters, digits, '_', '.' or '-'"
)

// Register creates a new account
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	username := NormalizeUsername(req.Username)
	if username == "" || req.Password == "" || req.ConfirmPassword == "" {
		return nil, newError(ErrValidation, "username, password and confirm_password are required")
	}
	if !ValidUsername(username) {
		return nil, newError(ErrValidation, msgInvalidUsername)
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(ErrConflict, "username already taken")
	}

	if req.Password != req.ConfirmPassword {
		return nil, newError(ErrValidation, msgPasswordMismatch)
	}
	if !StrongPassword(req.Password) {
		return nil, newError(ErrValidation, msgWeakPassword)
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, newError(ErrConflict, "username already taken")
		}
		return nil, err
	}

	s.log.WithField("username", username).Info("user registered")
	return user, nil
}

// Authenticate checks a username and password pair
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(ErrAuthenticationFailed, "invalid username or password")
		}
		return nil, err
	}

	if !crypto.CheckPassword(password, user.PasswordHash) {
		return nil, newError(ErrAuthenticationFailed, "invalid username or password")
	}
	return user, nil
}

// Login authenticates a user and issues a session token
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*Session, *models.User, error) {
	if NormalizeUsername(req.Username) == "" || req.Password == "" {
		return nil, nil, newError(ErrValidation, "username and password are required")
	}

	user, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, nil, err
	}

	// Expired sessions are purged opportunistically on every login
	if n, err := s.sessions.PurgeExpired(ctx); err != nil {
		s.log.WithError(err).Warn("failed to purge expired tokens")
	} else if n > 0 {
		s.log.WithField("count", n).Debug("purged expired tokens")
	}

	session, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return session, user, nil
}

// Logout revokes the given token
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// UsernameAvailable reports whether username can still be registered
func (s *AuthService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return false, newError(ErrValidation, "username is required")
	}
	if !ValidUsername(username) {
		return false, newError(ErrValidation, msgInvalidUsername)
	}

	exists, err := s.userRepo.ExistsByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// ResetPassword replaces the password of an account. Sessions already issued
// to the user stay valid.
func (s *AuthService) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	username := NormalizeUsername(req.Username)
	if username == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
		return newError(ErrValidation, "username, new_password and confirm_password are required")
	}
	if req.NewPassword != req.ConfirmPassword {
		return newError(ErrValidation, msgPasswordMismatch)
	}
	if !StrongPassword(req.NewPassword) {
		return newError(ErrValidation, msgWeakPassword)
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return newError(ErrNotFound, "user not found")
		}
		return err
	}

	hash, err := crypto.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	s.log.WithField("username", username).Info("password reset")
	return nil
}
