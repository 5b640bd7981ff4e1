package websocket

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/phidinhthang/tiny-chat/config"
	"github.com/phidinhthang/tiny-chat/hub"
)

// Upgrader for websocket connections. The REST tier fronts this service,
// so origin checks are delegated to it.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades HTTP requests into live sessions.
type Handler struct {
	hub *hub.Hub
	cfg *config.WebSocketConfig
}

// NewHandler creates a new websocket handler.
func NewHandler(h *hub.Hub, cfg *config.WebSocketConfig) *Handler {
	return &Handler{hub: h, cfg: cfg}
}

// HandleWebSocket handles an incoming websocket connection. It blocks
// on the session's read loop; the net/http server already gives each
// connection its own goroutine.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	NewSession(conn, h.hub, h.cfg).Run()
}

// isExpectedCloseError reports whether an error is routine connection
// teardown noise rather than something worth logging loudly.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
