package server

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dapla-platform/dapla/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin plane binds to loopback by default; cross-origin browser
	// access goes through whatever fronts the daemon.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventMessage is the wire form of a bus envelope.
type eventMessage struct {
	Topic     string    `json:"topic"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// handleEvents upgrades the connection and streams lifecycle and discovery
// events until the client goes away or the bus shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[APIServer] websocket upgrade failed: %v", err)
		return
	}

	clientID := uuid.NewString()
	log.Printf("[APIServer] event stream client %s connected", clientID)

	status := s.bus.Subscribe(eventbus.TopicDapsStatus)
	discovery := s.bus.Subscribe(eventbus.TopicDapsDiscovery)
	defer status.Close()
	defer discovery.Close()

	// Reader exists only to observe the close handshake.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case env, ok := <-status.Events():
			if !ok {
				return
			}
			if !s.writeEvent(conn, clientID, env) {
				return
			}
		case env, ok := <-discovery.Events():
			if !ok {
				return
			}
			if !s.writeEvent(conn, clientID, env) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[APIServer] event stream client %s ping failed: %v", clientID, err)
				return
			}
		case <-gone:
			log.Printf("[APIServer] event stream client %s disconnected", clientID)
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, clientID string, env eventbus.Envelope) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := eventMessage{
		Topic:     string(env.Topic),
		Source:    string(env.Source),
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[APIServer] event stream client %s write failed: %v", clientID, err)
		return false
	}
	return true
}
