package routes

import (
	"github.com/gin-gonic/gin"

	"pulsewire/internal/api/handlers"
	"pulsewire/internal/api/middleware"
	"pulsewire/internal/apps"
	"pulsewire/internal/channels"
	"pulsewire/internal/statistics"
	"pulsewire/internal/websocket"
)

type Router struct {
	engine         *gin.Engine
	wsHandler      *handlers.WSHandler
	eventHandler   *handlers.EventHandler
	channelHandler *handlers.ChannelHandler
	registry       apps.Registry
}

func NewRouter(
	dispatcher *websocket.Dispatcher,
	manager *channels.Manager,
	registry apps.Registry,
	stats statistics.Collector,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogAPI())

	return &Router{
		engine:         engine,
		wsHandler:      handlers.NewWSHandler(dispatcher),
		eventHandler:   handlers.NewEventHandler(manager, stats),
		channelHandler: handlers.NewChannelHandler(manager),
		registry:       registry,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// WebSocket endpoint; the app key rides in the path.
	r.engine.GET("/app/:appKey", r.wsHandler.HandleWebSocket)

	// Pusher REST surface, HMAC-signed per request.
	api := r.engine.Group("/apps/:appId")
	api.Use(middleware.PusherAuth(r.registry))
	{
		api.POST("/events", r.eventHandler.TriggerEvent)
		api.GET("/channels", r.channelHandler.Index)
		api.GET("/channels/:channelName", r.channelHandler.Show)
		api.GET("/channels/:channelName/users", r.channelHandler.Users)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
