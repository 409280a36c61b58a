// Stream handler.
//
// GET /ws upgrades to a websocket and pushes every store event as a JSON text
// frame. The first frames are the current session, room and feed snapshots so
// a fresh UI can render without extra requests. Inbound frames are ignored;
// the stream is one-way.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/chatverse/internal/http/middleware"
	"github.com/tbourn/chatverse/internal/store"
)

const (
	streamBuffer    = 64
	streamWait      = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
	streamReadLimit = 512
)

// Stream godoc
// @ID          stream
// @Summary     Websocket stream of state changes
// @Description Frames are store.Event JSON documents (kind: session, rooms, messages, credits, sent, notifications).
// @Tags        Stream
// @Success     101
// @Failure     503  {object}  handlers.ErrorResponse  "Stream unavailable"
// @Router      /ws [get]
func (h *Handlers) Stream(c *gin.Context) {
	if h.state.Events == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "event stream unavailable")
		return
	}

	lg := middleware.LoggerFrom(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already answered the client.
		lg.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	events, cancel := h.state.Events.Subscribe(streamBuffer)
	s := &streamConn{conn: conn, events: events, cancel: cancel, log: lg}

	go s.readPump()
	s.writePump(h.snapshotEvents())
}

func (h *Handlers) snapshotEvents() []store.Event {
	now := time.Now().UTC()
	return []store.Event{
		{Kind: store.EventSession, At: now, Payload: h.state.Session.Snapshot()},
		{Kind: store.EventRooms, At: now, Payload: h.state.Rooms.Snapshot()},
		{Kind: store.EventNotifications, At: now, Payload: h.state.Feed.Snapshot()},
	}
}

type streamConn struct {
	conn   *websocket.Conn
	events <-chan store.Event
	cancel func()
	log    *zerolog.Logger
}

// readPump drains control frames until the peer goes away, then unsubscribes,
// which closes the event channel and ends writePump.
func (s *streamConn) readPump() {
	defer s.cancel()

	s.conn.SetReadLimit(streamReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
	}
}

func (s *streamConn) writePump(initial []store.Event) {
	ticker := time.NewTicker(streamPingEvery)
	defer func() {
		ticker.Stop()
		s.cancel()
		_ = s.conn.Close()
	}()

	for _, ev := range initial {
		if err := s.write(ev); err != nil {
			return
		}
	}

	for {
		select {
		case ev, open := <-s.events:
			if !open {
				_ = s.conn.SetWriteDeadline(time.Now().Add(streamWait))
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.write(ev); err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(streamWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *streamConn) write(ev store.Event) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(streamWait))
	return s.conn.WriteJSON(ev)
}
