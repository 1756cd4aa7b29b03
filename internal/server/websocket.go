package server

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/woo850115-hub/project-g/internal/core/observability/log"
	"github.com/woo850115-hub/project-g/internal/core/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades one connection, assigns a session id, and runs
// the read/write pumps. The reader feeds the inbound channel; the writer
// drains the router's per-session queue. Neither touches simulation state.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Net.MaxConnections > 0 &&
		atomic.LoadInt64(&s.connCount) >= int64(s.cfg.Net.MaxConnections) {
		http.Error(w, ErrMaxClientsReached.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}

	sessionID := atomic.AddUint64(&s.nextSessionID, 1) - 1
	atomic.AddInt64(&s.connCount, 1)
	writeCh := s.router.register(sessionID)

	s.logger.Info("connection accepted",
		log.Uint64("session", sessionID),
		log.String("remote", conn.RemoteAddr().String()),
	)
	s.inbound <- session.Connected(sessionID)

	// Writer pump.
	go func() {
		for payload := range writeCh {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		}
		_ = conn.Close()
	}()

	// Reader pump, on this goroutine.
	maxLen := s.cfg.Net.MaxInputLength
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if maxLen > 0 && len(data) > maxLen {
			s.logger.Warn("oversized input dropped",
				log.Uint64("session", sessionID),
				log.Int("bytes", len(data)),
			)
			continue
		}
		s.inbound <- session.Line(sessionID, string(data))
	}

	s.inbound <- session.Disconnected(sessionID)
	s.router.unregister(sessionID)
	atomic.AddInt64(&s.connCount, -1)
	_ = conn.Close()
	s.logger.Info("connection closed", log.Uint64("session", sessionID))
}
