// Message HTTP handlers.
//
//   - GET  /messages           (message log of the active room)
//   - POST /messages/refresh   (reload the active room's history)
//   - POST /messages           (send text, or the composer draft)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and the same key already
// produced a message for (user, active room), the handler answers with that
// message, sets `Idempotency-Replayed: true`, and spends no credit. A key
// whose first send has not settled yet is answered with 409 send_in_progress.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/http/middleware"
	"github.com/tbourn/chatverse/internal/services"
)

// HeaderIdempotencyReplayed marks a response served from the replay log.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

//
// DTOs
//

// PostMessageRequest is the send payload. With FromDraft set, Text is ignored
// and the composer contents are sent instead.
type PostMessageRequest struct {
	Text      string `json:"text" example:"Hello everyone"`
	FromDraft bool   `json:"from_draft" example:"false"`
}

// PostMessageResponse describes a settled send.
type PostMessageResponse struct {
	AttemptID string         `json:"attempt_id,omitempty"`
	Message   domain.Message `json:"message"`
	Balance   int            `json:"balance"`
	Replayed  bool           `json:"replayed,omitempty"`
}

// MessagesResponse is the active room's log plus sends still in flight.
type MessagesResponse struct {
	RoomID   string                 `json:"room_id,omitempty"`
	Messages []domain.Message       `json:"messages"`
	InFlight []services.SendAttempt `json:"in_flight"`
}

func (h *Handlers) messagesResponse() MessagesResponse {
	out := MessagesResponse{
		Messages: h.state.Rooms.Messages(),
		InFlight: h.chat.InFlight(),
	}
	if room, found := h.state.Rooms.ActiveRoom(); found {
		out.RoomID = room.ID
	}
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	return out
}

//
// Handlers
//

// ListMessages godoc
// @ID          listMessages
// @Summary     Message log of the active room
// @Tags        Messages
// @Produce     json
// @Success     200  {object}  handlers.MessagesResponse
// @Router      /messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ok(c, http.StatusOK, h.messagesResponse())
}

// RefreshMessages godoc
// @ID          refreshMessages
// @Summary     Reload the active room's history
// @Tags        Messages
// @Produce     json
// @Success     200  {object}  handlers.MessagesResponse
// @Failure     409  {object}  handlers.ErrorResponse  "No active room"
// @Failure     502  {object}  handlers.ErrorResponse  "Gateway failure"
// @Router      /messages/refresh [post]
func (h *Handlers) RefreshMessages(c *gin.Context) {
	if _, err := h.chat.LoadMessages(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.messagesResponse())
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message to the active room
// @Description Costs credits once the gateway accepts the message.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message, no charge).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header    string                          false  "Idempotency key for safe retries"
// @Param       body             body      handlers.PostMessageRequest     true   "Message"
// @Success     200              {object}  handlers.PostMessageResponse
// @Failure     400              {object}  handlers.ErrorResponse  "Empty message"
// @Failure     401              {object}  handlers.ErrorResponse  "Not authenticated"
// @Failure     402              {object}  handlers.ErrorResponse  "No credits left"
// @Failure     409              {object}  handlers.ErrorResponse  "No active room, or the same Idempotency-Key is in progress"
// @Failure     502              {object}  handlers.ErrorResponse  "Gateway failure"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed message")
		return
	}

	user, _ := h.state.Session.User()
	room, _ := h.state.Rooms.ActiveRoom()

	// Idempotency: claim the key first so concurrent retries cannot both send.
	log := middleware.LoggerFrom(c)
	idemKey, _ := middleware.GetIdempotencyKey(c)
	claimed := false
	if idemKey != "" && h.replays != nil && user.ID != "" && room.ID != "" {
		msgID, owned, err := h.replays.Claim(ctx, user.ID, room.ID, idemKey)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("idempotency claim failed")
		case owned:
			claimed = true
		case msgID == "":
			fail(c, http.StatusConflict, ErrCodeSendInProgress, "a send with this Idempotency-Key is in progress")
			return
		default:
			prev, inLog := h.state.Rooms.Message(msgID)
			if !inLog {
				prev = domain.Message{ID: msgID, RoomID: room.ID}
			}
			c.Header(HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, PostMessageResponse{
				Message:  prev,
				Balance:  h.state.Rooms.Credits(),
				Replayed: true,
			})
			return
		}
	}

	var (
		receipt services.SendReceipt
		err     error
	)
	if req.FromDraft {
		receipt, err = h.chat.SubmitDraft(ctx)
	} else {
		receipt, err = h.chat.Send(ctx, req.Text)
	}
	if err != nil {
		if claimed {
			if rerr := h.replays.Release(ctx, user.ID, room.ID, idemKey); rerr != nil {
				log.Warn().Err(rerr).Msg("idempotency claim not released")
			}
		}
		failErr(c, err)
		return
	}

	if claimed {
		if err := h.replays.Complete(ctx, user.ID, room.ID, idemKey, receipt.Message.ID); err != nil {
			log.Warn().Err(err).Str("message_id", receipt.Message.ID).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusOK, PostMessageResponse{
		AttemptID: receipt.AttemptID,
		Message:   receipt.Message,
		Balance:   receipt.Balance,
	})
}
