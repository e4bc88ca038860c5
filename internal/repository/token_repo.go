package repository

import (
	"context"
	"errors"
	"time"

	"github.com/inventory-ledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTokenNotFound = errors.New("token not found")
)

// TokenRepository stores session tokens in the tokens table
type TokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Insert persists a new token
func (r *TokenRepository) Insert(ctx context.Context, token *models.Token) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(token).Error
}

// Find retrieves a token by its exact value
func (r *TokenRepository) Find(ctx context.Context, value string) (*models.Token, error) {
	var token models.Token
	result := r.db.WithContext(ctx).Where("token = ?", value).First(&token)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, result.Error
	}
	return &token, nil
}

// Delete removes a token; deleting a missing token is not an error
func (r *TokenRepository) Delete(ctx context.Context, value string) error {
	return r.db.WithContext(ctx).Where("token = ?", value).Delete(&models.Token{}).Error
}

// DeleteExpired removes every token that expired at or before now
func (r *TokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.Token{})
	return result.RowsAffected, result.Error
}
