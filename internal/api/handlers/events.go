package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsewire/internal/api/middleware"
	"pulsewire/internal/channels"
	"pulsewire/internal/protocol"
	"pulsewire/internal/statistics"
)

// EventHandler serves the trigger API used by server-side application code
// to push events into channels.
type EventHandler struct {
	manager *channels.Manager
	stats   statistics.Collector
}

func NewEventHandler(manager *channels.Manager, stats statistics.Collector) *EventHandler {
	if stats == nil {
		stats = statistics.NoopCollector{}
	}
	return &EventHandler{manager: manager, stats: stats}
}

type triggerEventRequest struct {
	Name     string          `json:"name" binding:"required"`
	Channels []string        `json:"channels"`
	Channel  string          `json:"channel"`
	Data     json.RawMessage `json:"data" binding:"required"`
	SocketID string          `json:"socket_id"`
}

// TriggerEvent broadcasts an event to each named channel, excluding the
// given socket_id when present. Channels are looked up, never created:
// an event for a channel nobody occupies is a silent no-op.
func (h *EventHandler) TriggerEvent(c *gin.Context) {
	app := middleware.AppFromContext(c)

	var req triggerEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targets := req.Channels
	if len(targets) == 0 {
		if req.Channel == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "channels is required"})
			return
		}
		targets = []string{req.Channel}
	}

	msg := protocol.Message{Event: req.Name, Data: req.Data}
	for _, name := range targets {
		if h.manager.Find(app.ID, name) == nil {
			continue
		}
		msg.Channel = name
		h.manager.BroadcastToEveryoneExcept(c.Request.Context(), app.ID, name, msg, req.SocketID, true)
	}
	h.stats.APIMessage(app.ID)

	c.JSON(http.StatusOK, gin.H{})
}
