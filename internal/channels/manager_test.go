package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewire/internal/apps"
	"pulsewire/internal/protocol"
	"pulsewire/internal/replication"
)

// mockConnection records every message sent to it.
type mockConnection struct {
	socketID string
	app      *apps.App

	mu       sync.Mutex
	messages []protocol.Message
}

func (c *mockConnection) SocketID() string { return c.socketID }
func (c *mockConnection) App() *apps.App   { return c.app }

func (c *mockConnection) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func (c *mockConnection) Messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]protocol.Message, len(c.messages))
	copy(result, c.messages)
	return result
}

func (c *mockConnection) LastMessage(t *testing.T) protocol.Message {
	t.Helper()
	msgs := c.Messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

// recordingHooks captures lifecycle notifications.
type recordingHooks struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) record(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *recordingHooks) ChannelOccupied(appID, channel string) {
	h.record("occupied:%s", channel)
}

func (h *recordingHooks) ChannelVacated(appID, channel string) {
	h.record("vacated:%s", channel)
}

func (h *recordingHooks) MemberAdded(appID, channel, userID string) {
	h.record("member_added:%s:%s", channel, userID)
}

func (h *recordingHooks) MemberRemoved(appID, channel, userID string) {
	h.record("member_removed:%s:%s", channel, userID)
}

func (h *recordingHooks) ClientEvent(appID, channel, event string) {
	h.record("client_event:%s:%s", channel, event)
}

func (h *recordingHooks) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]string, len(h.events))
	copy(result, h.events)
	return result
}

var testApp = &apps.App{
	ID:     "1",
	Key:    "test-app-key",
	Secret: "test-app-secret",
}

func newTestConn(socketID string) *mockConnection {
	return &mockConnection{socketID: socketID, app: testApp}
}

func newTestManager() (*Manager, *recordingHooks) {
	hooks := &recordingHooks{}
	return NewManager(replication.NewLocal(), hooks), hooks
}

func subscribePayload(conn *mockConnection, channel, channelData string) protocol.SubscribePayload {
	payload := protocol.SubscribePayload{Channel: channel, ChannelData: channelData}
	if KindOf(channel).RequiresAuth() {
		app := conn.App()
		payload.Auth = app.Key + ":" + protocol.ChannelSignature(app.Secret, conn.SocketID(), channel, channelData)
	}
	return payload
}

// decodeDataString unwraps a double-encoded system-event data field.
func decodeDataString(t *testing.T, data json.RawMessage) []byte {
	t.Helper()
	var inner string
	require.NoError(t, json.Unmarshal(data, &inner))
	return []byte(inner)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Public, KindOf("orders"))
	assert.Equal(t, Private, KindOf("private-orders"))
	assert.Equal(t, Presence, KindOf("presence-room"))
	assert.Equal(t, Public, KindOf(""))
	assert.False(t, Public.RequiresAuth())
	assert.True(t, Private.RequiresAuth())
	assert.True(t, Presence.RequiresAuth())
}

func TestFindOrCreateReturnsSameChannel(t *testing.T) {
	m, _ := newTestManager()

	first := m.FindOrCreate("1", "orders")
	second := m.FindOrCreate("1", "orders")
	assert.Same(t, first, second)
	assert.Equal(t, Public, first.Kind())

	// Different tenants get different channels under the same name.
	other := m.FindOrCreate("2", "orders")
	assert.NotSame(t, first, other)
}

func TestSubscribePublicChannel(t *testing.T) {
	m, hooks := newTestManager()
	conn := newTestConn("1.1")
	m.AddConnection(conn)

	err := m.Subscribe(context.Background(), conn, subscribePayload(conn, "orders", ""))
	require.NoError(t, err)

	msg := conn.LastMessage(t)
	assert.Equal(t, protocol.EventSubscriptionSucceeded, msg.Event)
	assert.Equal(t, "orders", msg.Channel)
	assert.JSONEq(t, `{}`, string(decodeDataString(t, msg.Data)))

	assert.Contains(t, hooks.Events(), "occupied:orders")
	summary, ok := m.Summary("1", "orders")
	require.True(t, ok)
	assert.Equal(t, 1, summary.SubscriptionCount)
}

func TestSubscribePrivateChannelRequiresValidSignature(t *testing.T) {
	m, _ := newTestManager()
	conn := newTestConn("1.1")
	m.AddConnection(conn)

	err := m.Subscribe(context.Background(), conn, protocol.SubscribePayload{
		Channel: "private-orders",
		Auth:    "test-app-key:deadbeef",
	})

	var protoErr *protocol.Error
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, protocol.CodeInvalidSignature, protoErr.Code)

	// The failed subscribe must not leave the channel occupied.
	assert.Nil(t, m.Find("1", "private-orders"))
	assert.Empty(t, conn.Messages())
}

func TestSubscribePrivateChannelWithValidSignature(t *testing.T) {
	m, _ := newTestManager()
	conn := newTestConn("1.1")
	m.AddConnection(conn)

	err := m.Subscribe(context.Background(), conn, subscribePayload(conn, "private-orders", ""))
	require.NoError(t, err)
	assert.Equal(t, protocol.EventSubscriptionSucceeded, conn.LastMessage(t).Event)
}

func TestSubscribePresenceChannel(t *testing.T) {
	m, hooks := newTestManager()
	ctx := context.Background()

	alice := newTestConn("1.1")
	bob := newTestConn("2.2")
	m.AddConnection(alice)
	m.AddConnection(bob)

	aliceData := `{"user_id":"alice","user_info":{"name":"Alice"}}`
	require.NoError(t, m.Subscribe(ctx, alice, subscribePayload(alice, "presence-room", aliceData)))

	bobData := `{"user_id":"bob"}`
	require.NoError(t, m.Subscribe(ctx, bob, subscribePayload(bob, "presence-room", bobData)))

	// Alice sees bob join.
	var added protocol.Message
	for _, msg := range alice.Messages() {
		if msg.Event == protocol.EventMemberAdded {
			added = msg
		}
	}
	require.NotEmpty(t, added.Event)
	assert.Equal(t, "presence-room", added.Channel)
	assert.JSONEq(t, `{"user_id":"bob"}`, string(decodeDataString(t, added.Data)))

	// Bob's acknowledgement carries the full roster.
	ack := bob.LastMessage(t)
	require.Equal(t, protocol.EventSubscriptionSucceeded, ack.Event)
	var payload struct {
		Presence struct {
			IDs   []string                   `json:"ids"`
			Hash  map[string]json.RawMessage `json:"hash"`
			Count int                        `json:"count"`
		} `json:"presence"`
	}
	require.NoError(t, json.Unmarshal(decodeDataString(t, ack.Data), &payload))
	assert.Equal(t, []string{"alice", "bob"}, payload.Presence.IDs)
	assert.Equal(t, 2, payload.Presence.Count)
	assert.JSONEq(t, `{"name":"Alice"}`, string(payload.Presence.Hash["alice"]))

	assert.Contains(t, hooks.Events(), "member_added:presence-room:alice")
	assert.Contains(t, hooks.Events(), "member_added:presence-room:bob")

	summary, ok := m.Summary("1", "presence-room")
	require.True(t, ok)
	assert.Equal(t, 2, summary.SubscriptionCount)
	assert.Equal(t, 2, summary.UserCount)
}

func TestSubscribePresenceChannelRejectsBadChannelData(t *testing.T) {
	m, _ := newTestManager()
	conn := newTestConn("1.1")
	m.AddConnection(conn)

	err := m.Subscribe(context.Background(), conn, subscribePayload(conn, "presence-room", `{"no_user_id":true}`))

	var protoErr *protocol.Error
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, protocol.CodeInvalidAuthData, protoErr.Code)
	assert.Nil(t, m.Find("1", "presence-room"))
}

func TestDuplicateSubscribeAcknowledgesAgain(t *testing.T) {
	m, _ := newTestManager()
	conn := newTestConn("1.1")
	m.AddConnection(conn)
	ctx := context.Background()

	payload := subscribePayload(conn, "orders", "")
	require.NoError(t, m.Subscribe(ctx, conn, payload))
	require.NoError(t, m.Subscribe(ctx, conn, payload))

	msgs := conn.Messages()
	assert.Len(t, msgs, 2)
	summary, ok := m.Summary("1", "orders")
	require.True(t, ok)
	assert.Equal(t, 1, summary.SubscriptionCount)
}

func TestSameUserOnTwoSockets(t *testing.T) {
	m, hooks := newTestManager()
	ctx := context.Background()

	observer := newTestConn("9.9")
	first := newTestConn("1.1")
	second := newTestConn("2.2")
	for _, c := range []*mockConnection{observer, first, second} {
		m.AddConnection(c)
	}

	observerData := `{"user_id":"observer"}`
	require.NoError(t, m.Subscribe(ctx, observer, subscribePayload(observer, "presence-room", observerData)))

	aliceData := `{"user_id":"alice"}`
	require.NoError(t, m.Subscribe(ctx, first, subscribePayload(first, "presence-room", aliceData)))
	require.NoError(t, m.Subscribe(ctx, second, subscribePayload(second, "presence-room", aliceData)))

	// member_added for alice fires once, on the first socket only.
	addedCount := 0
	for _, msg := range observer.Messages() {
		if msg.Event == protocol.EventMemberAdded {
			addedCount++
		}
	}
	assert.Equal(t, 1, addedCount)

	summary, ok := m.Summary("1", "presence-room")
	require.True(t, ok)
	assert.Equal(t, 3, summary.SubscriptionCount)
	assert.Equal(t, 2, summary.UserCount)

	// Dropping one of alice's sockets does not announce a departure.
	m.Unsubscribe(ctx, first, "presence-room")
	assert.NotContains(t, hooks.Events(), "member_removed:presence-room:alice")

	// Dropping the last one does.
	m.Unsubscribe(ctx, second, "presence-room")
	assert.Contains(t, hooks.Events(), "member_removed:presence-room:alice")

	removed := observer.LastMessage(t)
	assert.Equal(t, protocol.EventMemberRemoved, removed.Event)
	assert.JSONEq(t, `{"user_id":"alice"}`, string(decodeDataString(t, removed.Data)))
}

func TestUnsubscribeEvictsEmptyChannel(t *testing.T) {
	m, hooks := newTestManager()
	conn := newTestConn("1.1")
	m.AddConnection(conn)
	ctx := context.Background()

	require.NoError(t, m.Subscribe(ctx, conn, subscribePayload(conn, "orders", "")))
	require.NotNil(t, m.Find("1", "orders"))

	m.Unsubscribe(ctx, conn, "orders")
	assert.Nil(t, m.Find("1", "orders"))
	assert.Contains(t, hooks.Events(), "vacated:orders")

	// Unsubscribing again is a no-op.
	m.Unsubscribe(ctx, conn, "orders")
}

func TestRemoveConnectionDetachesAllChannels(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	conn := newTestConn("1.1")
	other := newTestConn("2.2")
	m.AddConnection(conn)
	m.AddConnection(other)

	require.NoError(t, m.Subscribe(ctx, conn, subscribePayload(conn, "orders", "")))
	require.NoError(t, m.Subscribe(ctx, conn, subscribePayload(conn, "private-alerts", "")))
	require.NoError(t, m.Subscribe(ctx, other, subscribePayload(other, "orders", "")))

	assert.Equal(t, 2, m.ConnectionCount("1"))

	m.RemoveConnection(ctx, conn)

	assert.Equal(t, 1, m.ConnectionCount("1"))
	assert.Nil(t, m.Find("1", "private-alerts"))

	summary, ok := m.Summary("1", "orders")
	require.True(t, ok)
	assert.Equal(t, 1, summary.SubscriptionCount)
}

func TestBroadcastToEveryoneExcept(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	sender := newTestConn("1.1")
	receiver := newTestConn("2.2")
	m.AddConnection(sender)
	m.AddConnection(receiver)

	require.NoError(t, m.Subscribe(ctx, sender, subscribePayload(sender, "orders", "")))
	require.NoError(t, m.Subscribe(ctx, receiver, subscribePayload(receiver, "orders", "")))

	msg := protocol.Message{Event: "client-typing", Channel: "orders", Data: json.RawMessage(`{"x":1}`)}
	m.BroadcastToEveryoneExcept(ctx, "1", "orders", msg, sender.SocketID(), true)

	assert.Equal(t, "client-typing", receiver.LastMessage(t).Event)
	for _, got := range sender.Messages() {
		assert.NotEqual(t, "client-typing", got.Event)
	}
}

func TestBroadcastToUnknownChannelIsNoOp(t *testing.T) {
	m, _ := newTestManager()
	m.Broadcast("1", "ghost", protocol.Message{Event: "client-x"})
	m.BroadcastToEveryoneExcept(context.Background(), "1", "ghost", protocol.Message{Event: "client-x"}, "", true)
}

func TestHandleReplicatedDeliversLocally(t *testing.T) {
	m, _ := newTestManager()
	conn := newTestConn("1.1")
	m.AddConnection(conn)
	ctx := context.Background()

	require.NoError(t, m.Subscribe(ctx, conn, subscribePayload(conn, "orders", "")))

	m.HandleReplicated("1", "orders", "order-created", json.RawMessage(`{"id":7}`))

	msg := conn.LastMessage(t)
	assert.Equal(t, "order-created", msg.Event)
	assert.Equal(t, "orders", msg.Channel)
	assert.JSONEq(t, `{"id":7}`, string(msg.Data))
}

func TestChannelsListing(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	conn := newTestConn("1.1")
	m.AddConnection(conn)
	require.NoError(t, m.Subscribe(ctx, conn, subscribePayload(conn, "orders", "")))
	require.NoError(t, m.Subscribe(ctx, conn, subscribePayload(conn, "presence-room", `{"user_id":"alice"}`)))

	summaries := m.Channels("1")
	assert.Len(t, summaries, 2)

	names := make(map[string]ChannelSummary, len(summaries))
	for _, s := range summaries {
		names[s.Name] = s
	}
	assert.Equal(t, 0, names["orders"].UserCount)
	assert.Equal(t, 1, names["presence-room"].UserCount)

	ids := m.PresenceUserIDs(ctx, "1", "presence-room")
	assert.Equal(t, []string{"alice"}, ids)
}
