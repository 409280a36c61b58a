// Room HTTP handlers.
//
//   - GET  /rooms           (room collection and active room)
//   - POST /rooms/refresh   (reload rooms from the gateway)
//   - PUT  /rooms/active    (switch room, then reload its history)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chatverse/internal/domain"
)

// RoomsResponse describes the room collection.
type RoomsResponse struct {
	Rooms        []domain.ChatRoom `json:"rooms"`
	ActiveRoomID string            `json:"active_room_id,omitempty"`
	Loading      bool              `json:"loading"`
}

// SelectRoomRequest names the room to activate.
type SelectRoomRequest struct {
	RoomID string `json:"room_id" binding:"required" example:"1"`
}

// SelectRoomResponse carries the new active room and its reloaded history.
type SelectRoomResponse struct {
	Room     domain.ChatRoom  `json:"room"`
	Messages []domain.Message `json:"messages"`
}

func (h *Handlers) roomsResponse() RoomsResponse {
	st := h.state.Rooms.Snapshot()
	out := RoomsResponse{Rooms: st.Rooms, Loading: st.Loading}
	if out.Rooms == nil {
		out.Rooms = []domain.ChatRoom{}
	}
	if st.Active != nil {
		out.ActiveRoomID = st.Active.ID
	}
	return out
}

// ListRooms godoc
// @ID          listRooms
// @Summary     Room collection
// @Tags        Rooms
// @Produce     json
// @Success     200  {object}  handlers.RoomsResponse
// @Router      /rooms [get]
func (h *Handlers) ListRooms(c *gin.Context) {
	ok(c, http.StatusOK, h.roomsResponse())
}

// RefreshRooms godoc
// @ID          refreshRooms
// @Summary     Reload rooms
// @Description The first room becomes active when none is selected.
// @Tags        Rooms
// @Produce     json
// @Success     200  {object}  handlers.RoomsResponse
// @Failure     502  {object}  handlers.ErrorResponse  "Gateway failure"
// @Router      /rooms/refresh [post]
func (h *Handlers) RefreshRooms(c *gin.Context) {
	if _, err := h.chat.LoadRooms(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.roomsResponse())
}

// SelectRoom godoc
// @ID          selectRoom
// @Summary     Switch the active room
// @Description The message log is replaced with the new room's history.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SelectRoomRequest  true  "Room"
// @Success     200   {object}  handlers.SelectRoomResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse  "Unknown room"
// @Failure     502   {object}  handlers.ErrorResponse  "Gateway failure"
// @Router      /rooms/active [put]
func (h *Handlers) SelectRoom(c *gin.Context) {
	var req SelectRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room_id required")
		return
	}

	ctx := c.Request.Context()
	room, err := h.chat.SelectRoom(ctx, req.RoomID)
	if err != nil {
		failErr(c, err)
		return
	}
	msgs, err := h.chat.LoadMessages(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	ok(c, http.StatusOK, SelectRoomResponse{Room: room, Messages: msgs})
}
