package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/thereayou/dealroom-chat/internal/websocket"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler accepts upgrades from the listed origins; an empty
// list accepts any origin.
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &WebSocketHandler{
		hub:    hub,
		logger: logger.With("component", "ws"),
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the response
		h.logger.Debug("upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	client, err := h.hub.Attach(conn, user.ID)
	if err != nil {
		h.logger.Warn("could not attach socket", "user_id", user.ID, "error", err)
		_ = conn.Close()
		return
	}
	h.logger.Debug("socket attached", "user_id", user.ID, "socket_id", client.ID)
}
