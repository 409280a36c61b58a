// Package gateway provides the two implementations of the external chat
// gateway consumed by internal/services: Simulated, an in-process stand-in
// with canned data and artificial latency, and Client, a REST client for a
// real chat server.
//
// Both keep the session token issued at login or registration in a
// TokenStore. Nothing outside this package reads the token.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/tbourn/chatverse/internal/domain"
)

// TokenStore persists the single session token.
type TokenStore interface {
	SaveToken(ctx context.Context, t domain.AuthToken) error
	LoadToken(ctx context.Context) (*domain.AuthToken, error)
	DeleteToken(ctx context.Context) error
}

// ErrNoToken is returned by a TokenStore holding no token.
var ErrNoToken = errors.New("no session token")

// Avatar returns the generated avatar URL for a username.
func Avatar(username string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + username
}

func systemAvatar() string {
	return "https://api.dicebear.com/7.x/bottts/svg?seed=system"
}

func tokenRecord(res domain.AuthResult, expiresAt time.Time) domain.AuthToken {
	return domain.AuthToken{
		Key:       domain.SessionTokenKey,
		UserID:    res.User.ID,
		Username:  res.User.Username,
		Token:     res.Token,
		ExpiresAt: expiresAt,
	}
}
