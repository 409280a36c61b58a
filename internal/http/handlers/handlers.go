// Package handlers implements the local JSON API over the chat client's
// services and stores.
//
// Handlers are transport-thin: they bind input, call a service, and render
// either a store snapshot or the ErrorResponse envelope. All state lives in
// internal/store; nothing here caches it.
package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/services"
	"github.com/tbourn/chatverse/internal/store"
)

//
// Service contracts (context-aware)
//

// AuthService drives login, registration and logout.
type AuthService interface {
	Login(ctx context.Context, username, password string) (domain.User, error)
	Register(ctx context.Context, form services.RegistrationForm) (domain.User, error)
	ClearError()
	Logout(ctx context.Context)
}

// ChatService drives rooms, the message log, the composer and credits.
type ChatService interface {
	LoadRooms(ctx context.Context) ([]domain.ChatRoom, error)
	SelectRoom(ctx context.Context, roomID string) (domain.ChatRoom, error)
	LoadMessages(ctx context.Context) ([]domain.Message, error)
	Send(ctx context.Context, text string) (services.SendReceipt, error)
	SubmitDraft(ctx context.Context) (services.SendReceipt, error)
	InFlight() []services.SendAttempt
	SetDraft(text string)
	Draft() string
	SetCredits(n int) int
}

// ReplayStore remembers which message answered an Idempotency-Key so that a
// retried send is not charged twice.
//
// Claim reserves the key before the send; claimed is false when the key
// already answered a send (messageID set) or another send holds it (empty).
// The claimant settles it with Complete or, on failure, Release.
type ReplayStore interface {
	Claim(ctx context.Context, userID, roomID, key string) (messageID string, claimed bool, err error)
	Complete(ctx context.Context, userID, roomID, key, messageID string) error
	Release(ctx context.Context, userID, roomID, key string) error
}

// State gives read access to the stores. Events may be nil, in which case
// the websocket stream is unavailable.
type State struct {
	Session *store.SessionStore
	Rooms   *store.RoomStore
	Feed    *store.NotificationStore
	Events  *store.Broker
}

//
// Handler wiring
//

// Handlers groups every endpoint of the local API.
type Handlers struct {
	auth    AuthService
	chat    ChatService
	state   State
	replays ReplayStore

	upgrader websocket.Upgrader
}

// New constructs Handlers. replays may be nil to disable idempotent replay.
func New(auth AuthService, chat ChatService, state State, replays ReplayStore) *Handlers {
	return &Handlers{
		auth:    auth,
		chat:    chat,
		state:   state,
		replays: replays,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API binds to a local UI; CORS is enforced by the router.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}
