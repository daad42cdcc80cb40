package channels

import (
	"strings"

	"pulsewire/internal/apps"
	"pulsewire/internal/presence"
	"pulsewire/internal/protocol"
)

// Kind determines a channel's auth and membership semantics. It is selected
// once at creation from the channel name prefix.
type Kind int

const (
	Public Kind = iota
	Private
	Presence
)

const (
	privatePrefix  = "private-"
	presencePrefix = "presence-"
)

// KindOf classifies a channel name by prefix.
func KindOf(name string) Kind {
	switch {
	case strings.HasPrefix(name, presencePrefix):
		return Presence
	case strings.HasPrefix(name, privatePrefix):
		return Private
	default:
		return Public
	}
}

func (k Kind) String() string {
	switch k {
	case Private:
		return "private"
	case Presence:
		return "presence"
	default:
		return "public"
	}
}

// RequiresAuth reports whether subscriptions must carry a signature.
func (k Kind) RequiresAuth() bool {
	return k != Public
}

// Connection is the capability a channel holds on a subscriber: identity,
// resolved tenant and a non-blocking send. The websocket client implements
// it; tests substitute mocks.
type Connection interface {
	SocketID() string
	App() *apps.App
	Send(msg protocol.Message) error
}

// Channel owns the subscriber set for one channel name within one tenant.
// All mutation happens under the manager's lock; a Channel is never shared
// outside the manager beyond transient references during a call.
type Channel struct {
	name string
	kind Kind

	subscribers map[string]Connection
	order       []string // socket ids in insertion order

	// members tracks presence membership keyed by socket id. The
	// user-facing roster de-duplicates by user id elsewhere.
	members map[string]presence.Member
}

func newChannel(name string) *Channel {
	ch := &Channel{
		name:        name,
		kind:        KindOf(name),
		subscribers: make(map[string]Connection),
	}
	if ch.kind == Presence {
		ch.members = make(map[string]presence.Member)
	}
	return ch
}

func (ch *Channel) Name() string {
	return ch.name
}

func (ch *Channel) Kind() Kind {
	return ch.kind
}

func (ch *Channel) Has(socketID string) bool {
	_, ok := ch.subscribers[socketID]
	return ok
}

func (ch *Channel) Empty() bool {
	return len(ch.subscribers) == 0
}

// SubscriptionCount is the number of subscribed sockets.
func (ch *Channel) SubscriptionCount() int {
	return len(ch.subscribers)
}

// UserCount is the number of distinct presence users; zero for other kinds.
func (ch *Channel) UserCount() int {
	if ch.kind != Presence {
		return 0
	}
	users := make(map[string]struct{}, len(ch.members))
	for _, member := range ch.members {
		users[member.UserID] = struct{}{}
	}
	return len(users)
}

func (ch *Channel) add(conn Connection) {
	id := conn.SocketID()
	if _, ok := ch.subscribers[id]; ok {
		return
	}
	ch.subscribers[id] = conn
	ch.order = append(ch.order, id)
}

func (ch *Channel) remove(socketID string) {
	if _, ok := ch.subscribers[socketID]; !ok {
		return
	}
	delete(ch.subscribers, socketID)
	for i, id := range ch.order {
		if id == socketID {
			ch.order = append(ch.order[:i], ch.order[i+1:]...)
			break
		}
	}
	delete(ch.members, socketID)
}

// broadcast sends to every subscriber in insertion order, skipping the
// excluded socket id when one is given. Send failures are the connection's
// problem, not the channel's: a dead subscriber is reaped by its own pump.
func (ch *Channel) broadcast(msg protocol.Message, exceptSocketID string) {
	for _, id := range ch.order {
		if id == exceptSocketID {
			continue
		}
		//nolint:errcheck
		ch.subscribers[id].Send(msg)
	}
}
