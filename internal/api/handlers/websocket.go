package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsewire/internal/websocket"
)

// WSHandler bridges the HTTP layer to the WebSocket dispatcher.
type WSHandler struct {
	dispatcher *websocket.Dispatcher
}

func NewWSHandler(dispatcher *websocket.Dispatcher) *WSHandler {
	return &WSHandler{dispatcher: dispatcher}
}

// HandleWebSocket upgrades GET /app/:appKey. Pusher clients put the app key
// in the path; an appKey query parameter is honored as a fallback.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	appKey := c.Param("appKey")
	if appKey == "" {
		appKey = c.Query("appKey")
	}
	if appKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "app key is required"})
		return
	}

	h.dispatcher.ServeWS(c.Writer, c.Request, appKey)
}
