// Package domain defines the client-side state model of the chat interface:
// identities, rooms, messages, notifications and the session. These types are
// owned by the stores in internal/store and are copied, never shared, when they
// leave a store.
package domain

import "time"

// User is an identity issued by the Gateway. It is immutable once issued and is
// referenced (not owned) by the session and by each authored Message.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ChatRoom is a room as supplied by the Gateway. IDs are unique within the
// room collection held by the room store.
type ChatRoom struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Participants []User    `json:"participants"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clone returns a deep copy so that callers cannot alias store-owned slices.
func (r ChatRoom) Clone() ChatRoom {
	out := r
	if r.Participants != nil {
		out.Participants = append([]User(nil), r.Participants...)
	}
	if r.LastMessage != nil {
		m := *r.LastMessage
		out.LastMessage = &m
	}
	return out
}

// Message is a single entry of a room's message log. Once appended to the log
// it is never mutated or removed; ordering is arrival order.
//
// Author fields (UserID, Username, Avatar) are filled in locally for messages
// sent by this client, since the Gateway only echoes id, text and timestamp.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"room_id"`
}

// Credentials are the login form values.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is what reaches the Gateway after local form validation passed.
type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

// AuthResult is returned by the Gateway on successful login or registration.
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}
