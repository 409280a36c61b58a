package services

import (
	"context"

	"github.com/tbourn/chatverse/internal/domain"
)

// AuthGateway is the authentication side of the external gateway.
type AuthGateway interface {
	Login(ctx context.Context, creds domain.Credentials) (domain.AuthResult, error)
	Register(ctx context.Context, reg domain.Registration) (domain.AuthResult, error)
	Logout(ctx context.Context) error
}

// ChatGateway fetches rooms and messages and submits outgoing messages.
// Failures are reported as *domain.TransportError.
//
// SendMessage echoes only id, text, timestamp and room; author identity is
// filled in by the caller.
type ChatGateway interface {
	FetchRooms(ctx context.Context) ([]domain.ChatRoom, error)
	FetchMessages(ctx context.Context, roomID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, roomID, text string) (*domain.Message, error)
}

// Gateway is implemented by both gateway flavours in internal/gateway.
type Gateway interface {
	AuthGateway
	ChatGateway
}
