package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func (s *Server) newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin accepts requests without an Origin header, same-host origins
// and the configured allowed origins. No configured origins, or "*",
// accepts everything.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// handleWebsocket pushes every broadcast message to the client as JSON until
// either side goes away. Client frames are read and discarded.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debug("websocket upgrade failed", "origin", c.Request.Header.Get("Origin"), "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe("websocket")
	defer sub.Close()
	s.metrics.Subscribers(s.hub.Count())
	defer func() { s.metrics.Subscribers(s.hub.Count()) }()

	log.Debug("websocket connected", "subscriber", sub.ID, "remote", c.Request.RemoteAddr)

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
				time.Now().Add(time.Second))
			return
		case <-gone:
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("websocket write failed", "subscriber", sub.ID, "error", err)
				return
			}
		}
	}
}
