package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
)

var wsTracer = otel.Tracer("session-stream")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the configured IDE origins once they are part of AppConfig
		return true
	},
}

// StreamEvent is one websocket frame
type StreamEvent struct {
	Type        string              `json:"type"`
	Interaction *models.Interaction `json:"interaction,omitempty"`
}

const (
	EventInteraction = "interaction"
	// EventReplayDone separates replayed history from live interactions.
	EventReplayDone = "replay_done"
)

// StreamSession godoc
// @Summary Stream session interactions
// @Description WebSocket that replays the session history and then streams interactions as they are appended
// @Tags sessions
// @Param id path string true "Session ID"
// @Param access_token query string false "JWT, for clients that cannot set the Authorization header"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/sessions/{id} [get]
func (h *Handler) StreamSession(c *gin.Context) {
	_, span := wsTracer.Start(c.Request.Context(), "session_stream.stream")
	defer span.End()

	s, ok := h.lookup(c)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("session.id", s.ID))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	defer conn.Close()

	history, events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	logger := h.logger.With(zap.String("session_id", s.ID))
	logger.Debug("websocket subscriber connected", zap.Int("replayed", len(history)))

	// The client never sends data; reading surfaces close frames and pongs.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := range history {
		if err := writeEvent(conn, StreamEvent{Type: EventInteraction, Interaction: &history[i]}); err != nil {
			return
		}
	}
	if err := writeEvent(conn, StreamEvent{Type: EventReplayDone}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case i, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeEvent(conn, StreamEvent{Type: EventInteraction, Interaction: &i}); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-closed:
			logger.Debug("websocket subscriber disconnected")
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev StreamEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}
