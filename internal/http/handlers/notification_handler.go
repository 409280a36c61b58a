// Notification HTTP handlers.
//
//   - GET    /notifications                (feed, most recent first)
//   - POST   /notifications/:id/read       (mark one read)
//   - POST   /notifications/read-all       (mark every entry read)
//   - DELETE /notifications                (clear the feed)
//   - POST   /notifications/panel/toggle   (flip panel visibility)
//   - PUT    /notifications/panel          (set panel visibility)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/chatverse/internal/domain"
	"github.com/tbourn/chatverse/internal/store"
)

const maxFeedLimit = 100

// PanelBody is the notification panel visibility.
type PanelBody struct {
	Open *bool `json:"open" binding:"required" example:"true"`
}

// PanelResponse is the panel visibility after a change.
type PanelResponse struct {
	Open bool `json:"open"`
}

// feedResponse trims the snapshot to the newest limit entries. The unread
// count always describes the whole feed.
func feedResponse(st store.FeedState, limit int) store.FeedState {
	if limit > 0 && len(st.Notifications) > limit {
		st.Notifications = st.Notifications[:limit]
	}
	if st.Notifications == nil {
		st.Notifications = []domain.Notification{}
	}
	return st
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     Notification feed
// @Tags        Notifications
// @Produce     json
// @Param       limit  query     int  false  "Newest entries to return"  minimum(1) maximum(100)
// @Success     200    {object}  store.FeedState
// @Router      /notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	if limit < 0 {
		limit = 0
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	ok(c, http.StatusOK, feedResponse(h.state.Feed.Snapshot(), limit))
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark one notification read
// @Description Marking an entry that is already read is a no-op.
// @Tags        Notifications
// @Produce     json
// @Param       id   path      string  true  "Notification ID"
// @Success     200  {object}  store.FeedState
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown notification"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id := c.Param("id")
	if !h.state.Feed.MarkRead(id) && !feedContains(h.state.Feed.Snapshot(), id) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
		return
	}
	ok(c, http.StatusOK, feedResponse(h.state.Feed.Snapshot(), 0))
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark every notification read
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  store.FeedState
// @Router      /notifications/read-all [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	h.state.Feed.MarkAllRead()
	ok(c, http.StatusOK, feedResponse(h.state.Feed.Snapshot(), 0))
}

// ClearNotifications godoc
// @ID          clearNotifications
// @Summary     Clear the feed
// @Tags        Notifications
// @Success     204
// @Router      /notifications [delete]
func (h *Handlers) ClearNotifications(c *gin.Context) {
	h.state.Feed.Clear()
	noContent(c)
}

// TogglePanel godoc
// @ID          togglePanel
// @Summary     Flip notification panel visibility
// @Tags        Notifications
// @Produce     json
// @Success     200  {object}  handlers.PanelResponse
// @Router      /notifications/panel/toggle [post]
func (h *Handlers) TogglePanel(c *gin.Context) {
	ok(c, http.StatusOK, PanelResponse{Open: h.state.Feed.TogglePanel()})
}

// SetPanel godoc
// @ID          setPanel
// @Summary     Set notification panel visibility
// @Tags        Notifications
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.PanelBody  true  "Visibility"
// @Success     200   {object}  handlers.PanelResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /notifications/panel [put]
func (h *Handlers) SetPanel(c *gin.Context) {
	var req PanelBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "open required")
		return
	}
	h.state.Feed.SetPanelVisible(*req.Open)
	ok(c, http.StatusOK, PanelResponse{Open: *req.Open})
}

func feedContains(st store.FeedState, id string) bool {
	for _, n := range st.Notifications {
		if n.ID == id {
			return true
		}
	}
	return false
}
