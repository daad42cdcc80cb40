package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsewire/internal/api/middleware"
	"pulsewire/internal/channels"
)

// ChannelHandler serves the read-only channel introspection endpoints of
// the Pusher REST surface.
type ChannelHandler struct {
	manager *channels.Manager
}

func NewChannelHandler(manager *channels.Manager) *ChannelHandler {
	return &ChannelHandler{manager: manager}
}

// Index lists the app's occupied channels.
func (h *ChannelHandler) Index(c *gin.Context) {
	app := middleware.AppFromContext(c)

	result := make(map[string]gin.H)
	for _, summary := range h.manager.Channels(app.ID) {
		entry := gin.H{}
		if summary.Kind == channels.Presence {
			entry["user_count"] = summary.UserCount
		}
		result[summary.Name] = entry
	}

	c.JSON(http.StatusOK, gin.H{"channels": result})
}

// Show reports occupancy of a single channel.
func (h *ChannelHandler) Show(c *gin.Context) {
	app := middleware.AppFromContext(c)
	name := c.Param("channelName")

	summary, occupied := h.manager.Summary(app.ID, name)
	if !occupied {
		c.JSON(http.StatusOK, gin.H{"occupied": false})
		return
	}

	response := gin.H{
		"occupied":           true,
		"subscription_count": summary.SubscriptionCount,
	}
	if summary.Kind == channels.Presence {
		response["user_count"] = summary.UserCount
	}
	c.JSON(http.StatusOK, response)
}

// Users lists the distinct user ids present on a presence channel.
func (h *ChannelHandler) Users(c *gin.Context) {
	app := middleware.AppFromContext(c)
	name := c.Param("channelName")

	if channels.KindOf(name) != channels.Presence {
		c.JSON(http.StatusBadRequest, gin.H{"error": "users are only available on presence channels"})
		return
	}

	ids := h.manager.PresenceUserIDs(c.Request.Context(), app.ID, name)
	users := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		users = append(users, gin.H{"id": id})
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
