package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleEcho upgrades the connection, echoes the first text frame it
// receives, and closes. Non-text frames before it are skipped. After
// sending the close frame it keeps reading, for up to one second, until
// the peer's close reply arrives, so the close frame is not lost to a
// connection reset.
func (s *Server) handleEcho(w http.ResponseWriter, req *http.Request) {
	c, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer c.Close()

	for {
		mt, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := c.WriteMessage(websocket.TextMessage, msg); err == nil {
			_ = c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.SetReadDeadline(time.Now().Add(time.Second))
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					break
				}
			}
		}
		return
	}
}
