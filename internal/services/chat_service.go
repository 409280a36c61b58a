// Package services – ChatService
//
// ChatService loads rooms and messages into the room store and runs the send
// protocol: guard, clear the composer, call the gateway, then append, deduct
// and notify as one uninterrupted step.
//
// Sends may overlap while they wait on the gateway. Their commit steps are
// serialized, so completions land in the order the gateway resolved them.
package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/store"
)

// Send outcomes reported to a SendRecorder.
const (
	OutcomeSent     = "sent"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

const (
	sentTitle     = "Message Sent"
	failedTitle   = "Error"
	failedMessage = "Failed to send message. Please try again."
)

// SendRecorder observes send outcomes (metrics).
type SendRecorder interface {
	RecordSend(outcome string)
}

// SendAttempt is one outstanding send.
type SendAttempt struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Text      string    `json:"text"`
	StartedAt time.Time `json:"started_at"`
}

// SendReceipt describes a settled send.
type SendReceipt struct {
	AttemptID string         `json:"attempt_id"`
	Message   domain.Message `json:"message"`
	Balance   int            `json:"balance"`
}

// ChatService orchestrates rooms, messages and credits.
type ChatService struct {
	Session *store.SessionStore
	Rooms   *store.RoomStore
	Feed    *store.NotificationStore
	Gateway ChatGateway

	// MessageCost is deducted per settled send; values below 1 mean 1.
	MessageCost int

	// Optional
	Recorder SendRecorder
	Locale   language.Tag
	Now      func() time.Time
	NewID    func() string

	draft InputBuffer

	commitMu sync.Mutex

	mu       sync.Mutex
	inFlight map[string]SendAttempt
}

// LoadRooms fetches the room collection. The first room becomes active if
// none is selected yet.
func (s *ChatService) LoadRooms(ctx context.Context) ([]domain.ChatRoom, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "LoadRooms")
	defer span.End()

	s.Rooms.SetLoading(true)
	defer s.Rooms.SetLoading(false)

	rooms, err := s.Gateway.FetchRooms(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Msg("fetch rooms failed")
		return nil, err
	}
	s.Rooms.SetRooms(rooms)
	span.SetAttributes(attribute.Int("rooms.count", len(rooms)))
	return rooms, nil
}

// SelectRoom makes the room with the given id active. The message log is not
// reloaded; call LoadMessages afterwards.
func (s *ChatService) SelectRoom(ctx context.Context, roomID string) (domain.ChatRoom, error) {
	tr := otel.Tracer("services/ChatService")
	_, span := tr.Start(ctx, "SelectRoom",
		trace.WithAttributes(attribute.String("room.id", roomID)),
	)
	defer span.End()

	room, ok := s.Rooms.Room(roomID)
	if !ok {
		return domain.ChatRoom{}, ErrRoomNotFound
	}
	s.Rooms.SelectRoom(room)
	return room, nil
}

// LoadMessages replaces the log with the active room's history. A response
// for a room the user has since left is still applied.
func (s *ChatService) LoadMessages(ctx context.Context) ([]domain.Message, error) {
	room, ok := s.Rooms.ActiveRoom()
	if !ok {
		return nil, ErrNoActiveRoom
	}

	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "LoadMessages",
		trace.WithAttributes(attribute.String("room.id", room.ID)),
	)
	defer span.End()

	s.Rooms.SetLoading(true)
	defer s.Rooms.SetLoading(false)

	msgs, err := s.Gateway.FetchMessages(ctx, room.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("room_id", room.ID).Msg("fetch messages failed")
		return nil, err
	}
	s.Rooms.SetMessages(msgs)
	span.SetAttributes(attribute.Int("messages.count", len(msgs)))
	return msgs, nil
}

// Bootstrap loads rooms and then the history of the default room.
func (s *ChatService) Bootstrap(ctx context.Context) error {
	if _, err := s.LoadRooms(ctx); err != nil {
		return err
	}
	if _, ok := s.Rooms.ActiveRoom(); !ok {
		return nil
	}
	_, err := s.LoadMessages(ctx)
	return err
}

// SetDraft replaces the composer text.
func (s *ChatService) SetDraft(text string) { s.draft.Set(text) }

// Draft returns the composer text.
func (s *ChatService) Draft() string { return s.draft.Get() }

// SetCredits overrides the balance and returns the stored value.
func (s *ChatService) SetCredits(n int) int { return s.Rooms.SetCredits(n) }

// SubmitDraft sends the current composer text.
func (s *ChatService) SubmitDraft(ctx context.Context) (SendReceipt, error) {
	return s.Send(ctx, s.draft.Get())
}

// Send runs the send protocol for text in the active room.
//
// Guard violations return one of the Err* sentinels and change nothing.
// A gateway failure pushes an error notification and returns the gateway
// error; nothing is appended or deducted.
func (s *ChatService) Send(ctx context.Context, text string) (SendReceipt, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Send")
	defer span.End()

	text = strings.TrimSpace(text)
	user, room, err := s.guard(text)
	if err != nil {
		span.SetAttributes(attribute.String("send.rejected", err.Error()))
		s.record(OutcomeRejected)
		return SendReceipt{}, err
	}

	attempt := SendAttempt{ID: s.newID(), RoomID: room.ID, Text: text, StartedAt: s.now()}
	span.SetAttributes(
		attribute.String("room.id", room.ID),
		attribute.String("attempt.id", attempt.ID),
	)

	s.draft.Clear()
	s.track(attempt)
	defer s.untrack(attempt.ID)

	msg, err := s.Gateway.SendMessage(ctx, room.ID, text)
	if err == nil && msg == nil {
		err = &domain.TransportError{Op: "send_message"}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fail(attempt, err)
		return SendReceipt{}, err
	}

	return s.commit(attempt, user, *msg), nil
}

// InFlight lists outstanding send attempts, oldest first.
func (s *ChatService) InFlight() []SendAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendAttempt, 0, len(s.inFlight))
	for _, a := range s.inFlight {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (s *ChatService) guard(text string) (domain.User, domain.ChatRoom, error) {
	if text == "" {
		return domain.User{}, domain.ChatRoom{}, ErrEmptyMessage
	}
	user, ok := s.Session.User()
	if !ok {
		return domain.User{}, domain.ChatRoom{}, ErrNotAuthenticated
	}
	room, ok := s.Rooms.ActiveRoom()
	if !ok {
		return domain.User{}, domain.ChatRoom{}, ErrNoActiveRoom
	}
	if s.Rooms.Credits() <= 0 {
		return domain.User{}, domain.ChatRoom{}, ErrInsufficientCredits
	}
	return user, room, nil
}

// commit appends, deducts and notifies without interleaving with another send.
func (s *ChatService) commit(a SendAttempt, user domain.User, msg domain.Message) SendReceipt {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	msg.UserID = user.ID
	msg.Username = user.Username
	msg.Avatar = user.Avatar
	if msg.RoomID == "" {
		msg.RoomID = a.RoomID
	}
	if msg.Text == "" {
		msg.Text = a.Text
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}

	spent, balance := s.Rooms.CommitSend(msg, s.cost())
	s.Feed.Push(domain.Notification{
		ID:        s.newID(),
		Title:     sentTitle,
		Message:   s.creditMessage(spent, balance),
		Severity:  domain.SeverityInfo,
		Timestamp: s.now(),
	})
	s.record(OutcomeSent)

	log.Info().
		Str("attempt_id", a.ID).
		Str("room_id", a.RoomID).
		Str("message_id", msg.ID).
		Int("balance", balance).
		Msg("message sent")

	return SendReceipt{AttemptID: a.ID, Message: msg, Balance: balance}
}

func (s *ChatService) fail(a SendAttempt, err error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.Feed.Push(domain.Notification{
		ID:        s.newID(),
		Title:     failedTitle,
		Message:   failedMessage,
		Severity:  domain.SeverityError,
		Timestamp: s.now(),
	})
	s.record(OutcomeFailed)

	log.Warn().Err(err).Str("attempt_id", a.ID).Str("room_id", a.RoomID).Msg("send failed")
}

// creditMessage words the notice from what was actually deducted, which is
// less than the cost when a concurrent send drained the balance first.
func (s *ChatService) creditMessage(spent, balance int) string {
	tag := s.Locale
	if tag == language.Und {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	return p.Sprintf("%d %s used. %d credits remaining.", spent, creditUnit(spent), balance)
}

func creditUnit(n int) string {
	if n == 1 {
		return "credit"
	}
	return "credits"
}

func (s *ChatService) track(a SendAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight == nil {
		s.inFlight = make(map[string]SendAttempt)
	}
	s.inFlight[a.ID] = a
}

func (s *ChatService) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

func (s *ChatService) record(outcome string) {
	if s.Recorder != nil {
		s.Recorder.RecordSend(outcome)
	}
}

// DefaultMessageCost is charged when MessageCost is unset.
const DefaultMessageCost = 1

func (s *ChatService) cost() int {
	if s.MessageCost < 1 {
		return DefaultMessageCost
	}
	return s.MessageCost
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *ChatService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}
