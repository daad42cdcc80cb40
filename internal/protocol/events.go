package protocol

import "encoding/json"

// EncodeDataString marshals v and wraps the result in a JSON string,
// producing the double-encoded data field Pusher uses for server-generated
// system events.
func EncodeDataString(v any) (json.RawMessage, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	outer, err := json.Marshal(string(inner))
	if err != nil {
		return nil, err
	}
	return outer, nil
}

// NewConnectionEstablished builds the handshake-success event. The data
// field is a double-encoded JSON string, matching the Pusher wire format.
func NewConnectionEstablished(socketID string) Message {
	data, _ := EncodeDataString(struct {
		SocketID        string `json:"socket_id"`
		ActivityTimeout int    `json:"activity_timeout"`
	}{socketID, ActivityTimeout})

	return Message{Event: EventConnectionEstablished, Data: data}
}

// NewErrorMessage builds a pusher:error event. Unlike other system events
// the data field is a plain object, not a double-encoded string.
func NewErrorMessage(err *Error) Message {
	data, _ := json.Marshal(err)
	return Message{Event: EventError, Data: data}
}

// NewPong builds the reply to pusher:ping.
func NewPong() Message {
	return Message{Event: EventPong, Data: json.RawMessage(`{}`)}
}

// NewSubscriptionSucceeded builds the subscription acknowledgement. For
// presence channels data carries the double-encoded roster; for public and
// private channels it is empty.
func NewSubscriptionSucceeded(channel string, data json.RawMessage) Message {
	return Message{Event: EventSubscriptionSucceeded, Channel: channel, Data: data}
}

// NewMemberAdded builds the presence join notification sent to existing
// subscribers. memberData is the encoded {user_id, user_info} document.
func NewMemberAdded(channel string, memberData json.RawMessage) Message {
	return Message{Event: EventMemberAdded, Channel: channel, Data: memberData}
}

// NewMemberRemoved builds the presence leave notification.
func NewMemberRemoved(channel string, memberData json.RawMessage) Message {
	return Message{Event: EventMemberRemoved, Channel: channel, Data: memberData}
}
