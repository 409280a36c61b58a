// Package services is the orchestration layer of the chat client. It wires
// user actions and gateway responses into the stores in internal/store.
//
// Errors declared here are returned by service methods and translated into
// user-facing messages or HTTP status codes at the handler layer.
package services

import "errors"

// Send guard errors. Each is returned before any state mutation or gateway
// call takes place.
var (
	// ErrEmptyMessage is returned when the outgoing text is blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotAuthenticated is returned when there is no session user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoActiveRoom is returned when no room is selected.
	ErrNoActiveRoom = errors.New("no active room")

	// ErrInsufficientCredits is returned when the balance is zero.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// ErrRoomNotFound indicates that a room id is not part of the loaded collection.
var ErrRoomNotFound = errors.New("room not found")
