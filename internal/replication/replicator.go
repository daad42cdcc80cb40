// Package replication fans events out across server processes so that
// several instances act as one logical broadcast domain. A single
// well-known broker topic carries all tenants; isolation is by the app id
// inside the envelope, not by topic.
package replication

import (
	"context"
	"encoding/json"

	"pulsewire/internal/presence"
)

// Envelope is the JSON document carried on the replication topic. ServerID
// identifies the originating process so that it can discard its own
// publications when they come back around.
type Envelope struct {
	AppID    string          `json:"app_id"`
	ServerID string          `json:"server_id"`
	Channel  string          `json:"channel"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Handler receives events published by other processes. Implementations
// resolve the target channel and broadcast locally, without republishing.
type Handler func(appID, channel, event string, data json.RawMessage)

// Replicator abstracts cross-process publish and distributed presence
// membership. Publish failures during steady state are best-effort:
// implementations log and swallow them rather than retry.
type Replicator interface {
	// Publish hands an event to all other server processes.
	Publish(ctx context.Context, appID, channel, event string, data json.RawMessage) error

	// Subscribe and Unsubscribe track channel occupancy for this process,
	// keeping cluster-wide channel state queryable.
	Subscribe(ctx context.Context, appID, channel string) error
	Unsubscribe(ctx context.Context, appID, channel string) error

	// JoinPresence and LeavePresence maintain the distributed presence
	// membership map keyed by socket id.
	JoinPresence(ctx context.Context, appID, channel, socketID string, member presence.Member) error
	LeavePresence(ctx context.Context, appID, channel, socketID string) error

	// PresenceMembers returns the current cluster-wide membership of a
	// presence channel. No ordering is guaranteed across processes.
	PresenceMembers(ctx context.Context, appID, channel string) ([]presence.Member, error)

	Close() error
}
