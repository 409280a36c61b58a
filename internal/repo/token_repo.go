package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/chatverse/internal/domain"
)

// SaveToken upserts the session token row.
func SaveToken(ctx context.Context, db *gorm.DB, t domain.AuthToken) error {
	if t.Key == "" {
		t.Key = domain.SessionTokenKey
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "username", "token", "expires_at", "updated_at"}),
		}).
		Create(&t).Error
}

// LoadToken returns the stored token if it has not expired, else ErrNotFound.
func LoadToken(ctx context.Context, db *gorm.DB, now time.Time) (*domain.AuthToken, error) {
	var t domain.AuthToken
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", domain.SessionTokenKey, now).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteToken removes the stored token. Deleting a missing token is not an error.
func DeleteToken(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Where("key = ?", domain.SessionTokenKey).
		Delete(&domain.AuthToken{}).Error
}

// Tokens adapts the token functions to the gateway's TokenStore.
type Tokens struct {
	DB  *gorm.DB
	Now func() time.Time
}

func (t Tokens) SaveToken(ctx context.Context, tok domain.AuthToken) error {
	return SaveToken(ctx, t.DB, tok)
}

func (t Tokens) LoadToken(ctx context.Context) (*domain.AuthToken, error) {
	now := time.Now().UTC()
	if t.Now != nil {
		now = t.Now()
	}
	return LoadToken(ctx, t.DB, now)
}

func (t Tokens) DeleteToken(ctx context.Context) error {
	return DeleteToken(ctx, t.DB)
}
