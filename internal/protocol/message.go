package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Pusher protocol event names handled by the server.
const (
	EventPing        = "pusher:ping"
	EventPong        = "pusher:pong"
	EventSubscribe   = "pusher:subscribe"
	EventUnsubscribe = "pusher:unsubscribe"

	EventConnectionEstablished = "pusher:connection_established"
	EventError                 = "pusher:error"

	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	EventMemberAdded           = "pusher_internal:member_added"
	EventMemberRemoved         = "pusher_internal:member_removed"
)

const (
	protocolPrefix = "pusher:"
	internalPrefix = "pusher_internal:"
	clientPrefix   = "client-"
)

// ActivityTimeout is advertised to clients in connection_established. It is
// advisory for client-side ping scheduling; the server does not enforce it.
const ActivityTimeout = 30

// Kind classifies an inbound message by its event-name prefix.
type Kind int

const (
	// KindUnknown covers event names the server does not recognize. They
	// are ignored without an error, for forward compatibility.
	KindUnknown Kind = iota

	// KindProtocol is a pusher:* control message (ping, subscribe, ...).
	KindProtocol

	// KindClient is a client-* event broadcast by a connected client.
	KindClient
)

// Message is the JSON envelope carried over the WebSocket wire in both
// directions: {event, channel, data}.
type Message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Kind classifies the message by event-name prefix.
func (m Message) Kind() Kind {
	switch {
	case strings.HasPrefix(m.Event, protocolPrefix):
		return KindProtocol
	case strings.HasPrefix(m.Event, clientPrefix):
		return KindClient
	default:
		return KindUnknown
	}
}

// Decode parses a raw WebSocket frame into a Message.
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// Encode serializes a Message for the wire.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// SubscribePayload is the data carried by pusher:subscribe. Auth and
// ChannelData are only present for private and presence channels.
type SubscribePayload struct {
	Channel     string `json:"channel"`
	Auth        string `json:"auth,omitempty"`
	ChannelData string `json:"channel_data,omitempty"`
}

// UnsubscribePayload is the data carried by pusher:unsubscribe.
type UnsubscribePayload struct {
	Channel string `json:"channel"`
}

// ParseSubscribe extracts the subscribe payload from a message's data field.
func ParseSubscribe(msg Message) (SubscribePayload, error) {
	var payload SubscribePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return SubscribePayload{}, fmt.Errorf("parse subscribe payload: %w", err)
	}
	if payload.Channel == "" {
		return SubscribePayload{}, fmt.Errorf("parse subscribe payload: missing channel")
	}
	return payload, nil
}

// ParseUnsubscribe extracts the unsubscribe payload from a message's data field.
func ParseUnsubscribe(msg Message) (UnsubscribePayload, error) {
	var payload UnsubscribePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return UnsubscribePayload{}, fmt.Errorf("parse unsubscribe payload: %w", err)
	}
	if payload.Channel == "" {
		return UnsubscribePayload{}, fmt.Errorf("parse unsubscribe payload: missing channel")
	}
	return payload, nil
}
