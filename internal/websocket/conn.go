package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pulsewire/internal/apps"
)

// Conn is the slice of *websocket.Conn the client pumps rely on. Tests
// substitute an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// DefaultUpgrader accepts any origin. It is used before an app resolves,
// so that handshake errors can still be delivered over the socket.
func DefaultUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// NewUpgrader builds the HTTP upgrader for one resolved app, enforcing its
// allowed origins. An app without configured origins accepts any.
func NewUpgrader(app *apps.App) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(app.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range app.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}
