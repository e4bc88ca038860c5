package models

import "time"

// Token is an opaque bearer session owned by a user.
// Expiry is computed from ExpiresAt and never written back.
type Token struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	Value     string    `gorm:"column:token;uniqueIndex;size:64;not null" json:"-"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`

	// Relations
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Token model
func (Token) TableName() string {
	return "tokens"
}

// IsExpired reports whether the token is no longer valid at now.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
