package handlers

import (
	"net/http"

	"chat-server/internal/auth"
	"chat-server/internal/config"
	ws "chat-server/internal/ws"
	"chat-server/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService *auth.Service
	registry    *ws.Registry
	relay       *ws.Relay
	cfg         config.GatewayConfig
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, registry *ws.Registry, relay *ws.Relay, cfg config.GatewayConfig) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		registry:    registry,
		relay:       relay,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the connection and verifies the credential from
// the connection URL. An unverifiable credential gets one error frame and
// the socket is closed; no room state exists at that point.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	token := r.URL.Query().Get("token")
	identity, err := h.authService.Verify(token)
	if err != nil {
		conn.WriteJSON(ws.ErrorFrame{Type: ws.FrameError, Message: "unauthorized (invalid token)"})
		conn.Close()
		return
	}

	client := ws.NewClient(h.registry, h.relay, conn, *identity, h.cfg)
	client.Start()
}
