package wsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	apperrors "github.com/Leonel-Flores1704/Atlas/internal/errors"
	"github.com/Leonel-Flores1704/Atlas/internal/services"
	"github.com/Leonel-Flores1704/Atlas/internal/utils/broker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	TypeMessage = "message"
	TypeSwitch  = "switch"
	TypeNew     = "new"
	TypeDelete  = "delete"
	TypeStatus  = "status"
	TypeError   = "error"
)

type Handler struct {
	upgrader websocket.Upgrader
	broker   *broker.Broker
	log      zerolog.Logger
}

// ClientMessage is what the browser sends over the socket.
type ClientMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// ServerMessage is what the server pushes: workspace events forwarded from
// the broker, status replies and errors.
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type WorkspaceStatus struct {
	ActiveID string                    `json:"active_id"`
	Sessions []services.SessionSummary `json:"sessions"`
	Budget   services.BudgetSnapshot   `json:"budget"`
	Metrics  services.DashboardMetrics `json:"metrics"`
}

// conn serializes writes; gorilla connections support one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

// send writes a reply, logging failures; the read loop notices a dead socket
// on its own.
func (c *conn) send(log zerolog.Logger, msg ServerMessage) {
	if err := c.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("type", msg.Type).Msg("Error writing reply")
	}
}

func NewHandler(upgrader websocket.Upgrader, messageBroker *broker.Broker, logger zerolog.Logger) *Handler {
	return &Handler{
		upgrader: upgrader,
		broker:   messageBroker,
		log:      logger,
	}
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request, workspace *services.QuerySessionManager, userID uuid.UUID) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Error upgrading connection")
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}
	log := h.log.With().Str("userID", userID.String()).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	topic := services.WorkspaceTopic(userID)
	events := h.broker.Subscribe(topic)
	defer h.broker.Unsubscribe(topic, events)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if err := c.WriteJSON(ServerMessage{Type: event.Type, Payload: event.Payload}); err != nil {
					log.Debug().Err(err).Str("type", event.Type).Msg("Error forwarding event")
					return
				}
			}
		}
	}()

	if err := c.WriteJSON(statusMessage(workspace)); err != nil {
		log.Debug().Err(err).Msg("Error sending initial status")
		return
	}

	var pending sync.WaitGroup
	defer pending.Wait()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected websocket close")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send(log, ServerMessage{Type: TypeError, Error: "Malformed message"})
			continue
		}
		log.Debug().Str("type", msg.Type).Str("sessionID", msg.SessionID).Msg("Received message")

		switch msg.Type {
		case TypeMessage:
			// Answers keep landing in their session even if the socket goes away.
			queryCtx := context.WithoutCancel(ctx)
			pending.Add(1)
			go func(text string) {
				defer pending.Done()
				if _, err := workspace.Submit(queryCtx, text); err != nil {
					c.send(log, errorMessage(err, ""))
				}
			}(msg.Content)
		case TypeSwitch:
			if err := workspace.SwitchSession(msg.SessionID); err != nil {
				c.send(log, errorMessage(err, msg.SessionID))
			}
		case TypeNew:
			workspace.CreateSession()
		case TypeDelete:
			if err := workspace.DeleteSession(msg.SessionID); err != nil {
				c.send(log, errorMessage(err, msg.SessionID))
			}
		case TypeStatus:
			c.send(log, statusMessage(workspace))
		default:
			c.send(log, ServerMessage{Type: TypeError, Error: "Unknown message type: " + msg.Type})
		}
	}
}

func statusMessage(workspace *services.QuerySessionManager) ServerMessage {
	return ServerMessage{
		Type: TypeStatus,
		Payload: WorkspaceStatus{
			ActiveID: workspace.ActiveSession().ID,
			Sessions: workspace.Sessions(),
			Budget:   workspace.Budget(),
			Metrics:  workspace.Metrics(),
		},
	}
}

func errorMessage(err error, sessionID string) ServerMessage {
	customErr := apperrors.FromServiceError(err)
	return ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload:   gin.H{"type": customErr.Type},
		Error:     customErr.Message,
	}
}
