package session

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/convoflow/turn-engine/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Clients connect from arbitrary origins; auth happens upstream
		return true
	},
}

// Handler returns the WebSocket endpoint that runs one session per
// connection
func Handler(cfg *config.Config, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
			return
		}
		defer conn.Close()

		s := NewSession(conn, cfg, deps)
		if err := s.Run(r.Context()); err != nil {
			s.logger.Error().Err(err).Msg("Session terminated with error")
		}
	}
}
