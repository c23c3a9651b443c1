package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/focusrelay/pkg/relay"
)

// handleWebSocket upgrades the request and runs one relay session until the
// client disconnects. Inbound messages are handled one at a time.
func (s *Server) handleWebSocket(w http.ResponseWriter, req *http.Request) {
	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Debug().Err(err).Str("component", "server").Str("path", req.URL.Path).Msg("websocket upgrade failed")
		return
	}
	s.conns.Add(conn)
	defer s.conns.Remove(conn)
	if s.settings.ReadLimit > 0 {
		conn.SetReadLimit(int64(s.settings.ReadLimit))
	}

	wsLog := log.With().
		Str("component", "server").
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	session := relay.NewSession(s.baseCtx, relay.NewConnWriter(conn, s.settings.WriteTimeout()), s.relay).WithLogger(wsLog)
	defer session.Close()

	wsLog.Info().Msg("ws connected")
	defer wsLog.Info().Msg("ws disconnected")
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				wsLog.Debug().Err(err).Msg("ws read loop end")
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		session.HandleMessage(data)
	}
}
