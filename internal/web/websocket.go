package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/kb"
	"github.com/signalsfoundry/orrery/model"
)

const (
	writeWait = 5 * time.Second
	// Snapshots queued per stream client before older ones are dropped.
	streamBuffer = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI may be served from a dev server on another port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEcho answers every text "ping" with "pong" after the configured
// delay. Other messages are logged.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, s.log)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()
	s.metrics.WebsocketConnected(1)
	defer s.metrics.WebsocketConnected(-1)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			log.Debug(r.Context(), "echo client gone", logging.Err(err))
			return
		}
		if string(msg) != "ping" {
			log.Info(r.Context(), "websocket message", logging.String("message", string(msg)))
			continue
		}

		delay := time.NewTimer(s.cfg.EchoDelay)
		select {
		case <-delay.C:
		case <-r.Context().Done():
			delay.Stop()
			return
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(msgType, []byte("pong")); err != nil {
			log.Debug(r.Context(), "pong failed", logging.Err(err))
			return
		}
	}
}

// handleEphemerisStream pushes every snapshot of ?system= as a JSON text
// frame, starting with the latest one if any.
func (s *Server) handleEphemerisStream(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, s.log)
	system := r.URL.Query().Get("system")
	if system == "" {
		writeError(w, http.StatusBadRequest, "system query parameter is required")
		return
	}
	if _, err := s.kb.GetSystem(system); err != nil {
		writeErr(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()
	s.metrics.WebsocketConnected(1)
	defer s.metrics.WebsocketConnected(-1)

	updates := make(chan model.Ephemeris, streamBuffer)
	unsubscribe := s.kb.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventEphemerisUpdated || ev.System != system {
			return
		}
		select {
		case updates <- *ev.Ephemeris:
		default:
			// Slow client; drop this snapshot.
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if latest, ok := s.kb.Latest(system); ok {
		if err := writeSnapshot(conn, latest); err != nil {
			return
		}
	}
	log.Debug(ctx, "ephemeris stream opened", logging.String("system", system))

	for {
		select {
		case <-ctx.Done():
			return
		case eph := <-updates:
			if err := writeSnapshot(conn, eph); err != nil {
				log.Debug(ctx, "ephemeris stream closed", logging.Err(err))
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, eph model.Ephemeris) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(eph)
}
