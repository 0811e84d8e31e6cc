package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wavegram/notify-engine/internal/realtime"
	"github.com/wavegram/notify-engine/pkg/response"
)

// WSHandler upgrades authenticated clients onto the live notification
// channel. Auth runs in middleware before the upgrade, so an invalid
// token is rejected with 401 and never reaches the registry.
type WSHandler struct {
	registry *realtime.Registry
	upgrader websocket.Upgrader
}

func NewWSHandler(registry *realtime.Registry) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // CORS policy is enforced at the router level
			},
		},
	}
}

func (h *WSHandler) Handle(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for %s: %v", userID, err)
		return
	}

	conn := realtime.NewConnection(userID, ws)
	h.registry.Register(userID, conn)
	defer h.registry.Unregister(userID, conn)

	// Blocks until the client disconnects or a write fails.
	conn.Serve()
}
