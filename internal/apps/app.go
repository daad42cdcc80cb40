package apps

import (
	"context"
	"errors"
	"fmt"
)

// ErrAppNotFound is returned by registry lookups that match no app.
var ErrAppNotFound = errors.New("app not found")

// App is one credentialed tenant. Its key identifies it on the WebSocket
// handshake, its secret signs channel subscriptions and REST requests.
// An App is immutable once loaded for a request.
type App struct {
	ID             string
	Key            string
	Secret         string
	Name           string
	Host           string
	AllowedOrigins []string

	// ClientMessagesEnabled allows connected clients to broadcast
	// client-* events to their channels.
	ClientMessagesEnabled bool

	// StatisticsEnabled opts the app into periodic statistics snapshots.
	StatisticsEnabled bool

	// Capacity limits concurrent connections; zero means unlimited.
	Capacity int
}

// Validate checks the structural invariants of an app definition.
func (a *App) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("app id is required")
	}
	for _, r := range a.ID {
		if r < '0' || r > '9' {
			return fmt.Errorf("app id must be numeric, got %q", a.ID)
		}
	}
	if a.Key == "" {
		return fmt.Errorf("app %s: key is required", a.ID)
	}
	if a.Secret == "" {
		return fmt.Errorf("app %s: secret is required", a.ID)
	}
	if a.Capacity < 0 {
		return fmt.Errorf("app %s: capacity must not be negative", a.ID)
	}
	return nil
}

// Registry resolves apps by their credentials. Implementations are read-only
// at request time.
type Registry interface {
	FindByID(ctx context.Context, id string) (*App, error)
	FindByKey(ctx context.Context, key string) (*App, error)
	FindBySecret(ctx context.Context, secret string) (*App, error)
}
