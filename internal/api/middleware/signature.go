package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsewire/internal/apps"
	"pulsewire/internal/protocol"
)

const appContextKey = "pulsewire.app"

// PusherAuth verifies the HMAC signature every Pusher REST request carries
// in its query string. The app is resolved from the appId path parameter;
// the request body is restored after hashing so handlers can bind it.
func PusherAuth(registry apps.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("appId")
		app, err := registry.FindByID(c.Request.Context(), appID)
		if err != nil {
			if errors.Is(err, apps.ErrAppNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown app id"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "app lookup failed"})
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		err = protocol.VerifyRequestSignature(
			app.Key,
			app.Secret,
			c.Request.Method,
			c.Request.URL.Path,
			c.Request.URL.Query(),
			body,
		)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(appContextKey, app)
		c.Next()
	}
}

// AppFromContext returns the app the signature middleware resolved.
func AppFromContext(c *gin.Context) *apps.App {
	if app, ok := c.Get(appContextKey); ok {
		return app.(*apps.App)
	}
	return nil
}
