package service

import (
	"context"
	"errors"
	"time"

	"github.com/inventory-ledger/internal/models"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/pkg/keygen"
	"github.com/sirupsen/logrus"
)

// TokenStore persists session tokens. Both the tokens table and Redis
// implement it.
type TokenStore interface {
	Insert(ctx context.Context, token *models.Token) error
	Find(ctx context.Context, value string) (*models.Token, error)
	Delete(ctx context.Context, value string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SessionService issues and checks bearer tokens
type SessionService struct {
	store    TokenStore
	userRepo *repository.UserRepository
	ttl      time.Duration
	log      *logrus.Logger
	now      func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(store TokenStore, userRepo *repository.UserRepository, ttl time.Duration, log *logrus.Logger) *SessionService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SessionService{
		store:    store,
		userRepo: userRepo,
		ttl:      ttl,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Session is a freshly issued token
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue creates a new token for user
func (s *SessionService) Issue(ctx context.Context, user *models.User) (*Session, error) {
	value, err := keygen.SessionToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	token := &models.Token{
		Value:     value,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Insert(ctx, token); err != nil {
		return nil, err
	}

	return &Session{
		Token:     value,
		TokenType: "Bearer",
		ExpiresAt: token.ExpiresAt,
	}, nil
}

var errInvalidSession = newError(ErrUnauthorized, "invalid or expired token")

// Validate resolves a token to its user. An expired token is deleted on the
// spot.
func (s *SessionService) Validate(ctx context.Context, value string) (*models.User, error) {
	if value == "" {
		return nil, newError(ErrUnauthorized, "token is missing")
	}

	token, err := s.store.Find(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, errInvalidSession
		}
		return nil, err
	}

	if token.IsExpired(s.now()) {
		if err := s.store.Delete(ctx, value); err != nil {
			s.log.WithError(err).Warn("failed to delete expired token")
		}
		return nil, errInvalidSession
	}

	user, err := s.userRepo.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, errInvalidSession
		}
		return nil, err
	}
	return user, nil
}

// Revoke deletes a token. Revoking an unknown token succeeds.
func (s *SessionService) Revoke(ctx context.Context, value string) error {
	return s.store.Delete(ctx, value)
}

// PurgeExpired deletes every expired token and returns how many were removed
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}
