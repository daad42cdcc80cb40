package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"pulsewire/internal/presence"
	"pulsewire/internal/protocol"
	"pulsewire/internal/replication"
)

// Manager is the per-tenant registry of live channels. It owns every
// Channel exclusively and serializes all mutation behind one lock, giving
// the same atomicity the original single-threaded reactor had: no two
// subscribe/unsubscribe/broadcast operations interleave mid-mutation.
type Manager struct {
	mu sync.RWMutex

	// channels maps appID -> channelName -> channel.
	channels map[string]map[string]*Channel

	// conns maps appID -> socketID -> connection, for capacity checks and
	// disconnect cleanup.
	conns map[string]map[string]Connection

	// subscriptions maps appID -> socketID -> set of channel names, so a
	// closing connection can be detached from everything it joined.
	subscriptions map[string]map[string]map[string]struct{}

	replicator replication.Replicator
	hooks      LifecycleHooks
}

// NewManager builds a manager fanning out through the given replicator.
// Pass NoopHooks when no lifecycle consumer is wired.
func NewManager(replicator replication.Replicator, hooks LifecycleHooks) *Manager {
	if hooks == nil {
		hooks = NoopHooks{}
	}
	return &Manager{
		channels:      make(map[string]map[string]*Channel),
		conns:         make(map[string]map[string]Connection),
		subscriptions: make(map[string]map[string]map[string]struct{}),
		replicator:    replicator,
		hooks:         hooks,
	}
}

// AddConnection registers a freshly established connection.
func (m *Manager) AddConnection(conn Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	appID := conn.App().ID
	if m.conns[appID] == nil {
		m.conns[appID] = make(map[string]Connection)
	}
	m.conns[appID][conn.SocketID()] = conn
}

// ConnectionCount answers the live connection count for one tenant.
func (m *Manager) ConnectionCount(appID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns[appID])
}

// RemoveConnection detaches a closing connection from every channel it
// subscribed to and forgets it. Channels drained to zero are evicted.
func (m *Manager) RemoveConnection(ctx context.Context, conn Connection) {
	appID := conn.App().ID
	socketID := conn.SocketID()

	m.mu.Lock()
	var names []string
	for name := range m.subscriptions[appID][socketID] {
		names = append(names, name)
	}
	m.mu.Unlock()

	for _, name := range names {
		m.Unsubscribe(ctx, conn, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns[appID], socketID)
	if len(m.conns[appID]) == 0 {
		delete(m.conns, appID)
	}
}

// findOrCreate returns the channel, creating it lazily. Caller holds the lock.
func (m *Manager) findOrCreate(appID, name string) *Channel {
	if m.channels[appID] == nil {
		m.channels[appID] = make(map[string]*Channel)
	}
	ch, ok := m.channels[appID][name]
	if !ok {
		ch = newChannel(name)
		m.channels[appID][name] = ch
	}
	return ch
}

// FindOrCreate returns the tenant's channel for name, creating it lazily.
// Calling it twice with the same arguments yields the same instance while
// at least one subscriber remains.
func (m *Manager) FindOrCreate(appID, name string) *Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOrCreate(appID, name)
}

// Find is the non-creating lookup used on broadcast-only paths. Events to
// channels nobody created are silent no-ops at the caller.
func (m *Manager) Find(appID, name string) *Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[appID][name]
}

// Subscribe validates and executes a pusher:subscribe for conn. Auth
// failures surface as *protocol.Error and leave the connection unsubscribed
// but open. On success the subscriber receives subscription_succeeded, and
// for presence channels the other members receive member_added.
func (m *Manager) Subscribe(ctx context.Context, conn Connection, payload protocol.SubscribePayload) error {
	app := conn.App()
	socketID := conn.SocketID()
	name := payload.Channel
	kind := KindOf(name)

	var member presence.Member
	if kind.RequiresAuth() {
		if !protocol.VerifyChannelAuth(app.Key, app.Secret, payload.Auth, socketID, name, payload.ChannelData) {
			return protocol.NewInvalidSignatureError()
		}
	}
	if kind == Presence {
		var err error
		member, err = presence.ParseChannelData(payload.ChannelData)
		if err != nil {
			return protocol.NewInvalidAuthDataError("channel_data must carry user_id")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.findOrCreate(app.ID, name)
	if ch.Has(socketID) {
		// Duplicate subscribe: acknowledge again, change nothing.
		return m.sendSubscriptionSucceeded(ctx, conn, ch)
	}

	occupied := ch.Empty()
	ch.add(conn)
	m.recordSubscription(app.ID, socketID, name)

	if err := m.replicator.Subscribe(ctx, app.ID, name); err != nil {
		slog.Error("Replicator subscribe failed", "appId", app.ID, "channel", name, "error", err)
	}

	if kind == Presence {
		firstSocketOfUser := !presence.Contains(m.globalMembers(ctx, app.ID, name), member.UserID)
		ch.members[socketID] = member
		if err := m.replicator.JoinPresence(ctx, app.ID, name, socketID, member); err != nil {
			slog.Error("Replicator presence join failed", "appId", app.ID, "channel", name, "error", err)
		}
		if firstSocketOfUser {
			memberData, err := json.Marshal(member)
			if err == nil {
				added := protocol.NewMemberAdded(name, mustEncodeDataString(json.RawMessage(memberData)))
				m.broadcastToEveryoneExcept(ctx, app.ID, name, added, socketID, true)
			}
			m.hooks.MemberAdded(app.ID, name, member.UserID)
		}
	}

	if occupied {
		slog.Info("Channel occupied", "appId", app.ID, "channel", name, "kind", kind.String())
		m.hooks.ChannelOccupied(app.ID, name)
	}

	return m.sendSubscriptionSucceeded(ctx, conn, ch)
}

func (m *Manager) sendSubscriptionSucceeded(ctx context.Context, conn Connection, ch *Channel) error {
	var data json.RawMessage
	if ch.Kind() == Presence {
		roster := presence.BuildRoster(m.globalMembers(ctx, conn.App().ID, ch.Name()))
		encoded, err := protocol.EncodeDataString(struct {
			Presence presence.Roster `json:"presence"`
		}{roster})
		if err != nil {
			return fmt.Errorf("encode presence roster: %w", err)
		}
		data = encoded
	} else {
		data, _ = protocol.EncodeDataString(struct{}{})
	}
	return conn.Send(protocol.NewSubscriptionSucceeded(ch.Name(), data))
}

// globalMembers reads the cluster-wide membership through the replicator.
// With the local replicator this is simply the in-memory map.
func (m *Manager) globalMembers(ctx context.Context, appID, channel string) []presence.Member {
	members, err := m.replicator.PresenceMembers(ctx, appID, channel)
	if err != nil {
		slog.Error("Failed to load presence members", "appId", appID, "channel", channel, "error", err)
		return nil
	}
	return members
}

// Unsubscribe removes conn from the named channel. The channel is evicted
// from the registry the moment its subscriber count reaches zero.
func (m *Manager) Unsubscribe(ctx context.Context, conn Connection, name string) {
	app := conn.App()
	socketID := conn.SocketID()

	m.mu.Lock()
	defer m.mu.Unlock()

	ch := m.channels[app.ID][name]
	if ch == nil || !ch.Has(socketID) {
		return
	}

	member, wasMember := ch.members[socketID]
	ch.remove(socketID)
	m.forgetSubscription(app.ID, socketID, name)

	if err := m.replicator.Unsubscribe(ctx, app.ID, name); err != nil {
		slog.Error("Replicator unsubscribe failed", "appId", app.ID, "channel", name, "error", err)
	}

	if wasMember {
		if err := m.replicator.LeavePresence(ctx, app.ID, name, socketID); err != nil {
			slog.Error("Replicator presence leave failed", "appId", app.ID, "channel", name, "error", err)
		}
		// member_removed only fires when the departing socket was the last
		// one carrying that user id anywhere in the cluster.
		if !presence.Contains(m.globalMembers(ctx, app.ID, name), member.UserID) {
			memberData, err := json.Marshal(presence.Member{UserID: member.UserID})
			if err == nil {
				removed := protocol.NewMemberRemoved(name, mustEncodeDataString(json.RawMessage(memberData)))
				m.broadcastToEveryoneExcept(ctx, app.ID, name, removed, socketID, true)
			}
			m.hooks.MemberRemoved(app.ID, name, member.UserID)
		}
	}

	if ch.Empty() {
		delete(m.channels[app.ID], name)
		if len(m.channels[app.ID]) == 0 {
			delete(m.channels, app.ID)
		}
		slog.Info("Channel vacated", "appId", app.ID, "channel", name)
		m.hooks.ChannelVacated(app.ID, name)
	}
}

// Broadcast delivers a payload to every local subscriber of the channel,
// with no replication side effect. It is the entry point for messages that
// already arrived via replication, so they cannot echo back out.
func (m *Manager) Broadcast(appID, name string, msg protocol.Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ch := m.channels[appID][name]; ch != nil {
		ch.broadcast(msg, "")
	}
}

// BroadcastToEveryoneExcept is the general outward-broadcast primitive:
// it replicates the payload to the rest of the cluster (unless publish is
// false, for payloads that came from the cluster) and fans out locally,
// skipping the excluded socket id when one is given.
func (m *Manager) BroadcastToEveryoneExcept(ctx context.Context, appID, name string, msg protocol.Message, exceptSocketID string, publish bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.broadcastToEveryoneExcept(ctx, appID, name, msg, exceptSocketID, publish)
}

// broadcastToEveryoneExcept requires the caller to hold at least a read lock.
func (m *Manager) broadcastToEveryoneExcept(ctx context.Context, appID, name string, msg protocol.Message, exceptSocketID string, publish bool) {
	if publish {
		if err := m.replicator.Publish(ctx, appID, name, msg.Event, msg.Data); err != nil {
			slog.Error("Replication publish failed", "appId", appID, "channel", name, "event", msg.Event, "error", err)
		}
	}
	if ch := m.channels[appID][name]; ch != nil {
		ch.broadcast(msg, exceptSocketID)
	}
}

// HandleReplicated is wired as the replicator's inbound handler. Local
// delivery only: republishing here would loop the message forever.
func (m *Manager) HandleReplicated(appID, channel, event string, data json.RawMessage) {
	m.Broadcast(appID, channel, protocol.Message{Event: event, Channel: channel, Data: data})
}

// ChannelSummary describes one live channel for the introspection API.
type ChannelSummary struct {
	Name              string
	Kind              Kind
	SubscriptionCount int
	UserCount         int
}

// Channels lists the tenant's occupied channels.
func (m *Manager) Channels(appID string) []ChannelSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]ChannelSummary, 0, len(m.channels[appID]))
	for _, ch := range m.channels[appID] {
		summaries = append(summaries, ChannelSummary{
			Name:              ch.Name(),
			Kind:              ch.Kind(),
			SubscriptionCount: ch.SubscriptionCount(),
			UserCount:         ch.UserCount(),
		})
	}
	return summaries
}

// Summary describes a single channel; ok is false when it is not occupied.
func (m *Manager) Summary(appID, name string) (ChannelSummary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch := m.channels[appID][name]
	if ch == nil {
		return ChannelSummary{}, false
	}
	return ChannelSummary{
		Name:              ch.Name(),
		Kind:              ch.Kind(),
		SubscriptionCount: ch.SubscriptionCount(),
		UserCount:         ch.UserCount(),
	}, true
}

// PresenceUserIDs lists the distinct user ids present on a channel across
// the whole cluster.
func (m *Manager) PresenceUserIDs(ctx context.Context, appID, name string) []string {
	return presence.BuildRoster(m.globalMembers(ctx, appID, name)).IDs
}

func (m *Manager) recordSubscription(appID, socketID, name string) {
	if m.subscriptions[appID] == nil {
		m.subscriptions[appID] = make(map[string]map[string]struct{})
	}
	if m.subscriptions[appID][socketID] == nil {
		m.subscriptions[appID][socketID] = make(map[string]struct{})
	}
	m.subscriptions[appID][socketID][name] = struct{}{}
}

func (m *Manager) forgetSubscription(appID, socketID, name string) {
	delete(m.subscriptions[appID][socketID], name)
	if len(m.subscriptions[appID][socketID]) == 0 {
		delete(m.subscriptions[appID], socketID)
	}
	if len(m.subscriptions[appID]) == 0 {
		delete(m.subscriptions, appID)
	}
}

func mustEncodeDataString(raw json.RawMessage) json.RawMessage {
	encoded, err := json.Marshal(string(raw))
	if err != nil {
		return json.RawMessage(`""`)
	}
	return encoded
}
