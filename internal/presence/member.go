package presence

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Member is one presence-channel participant as declared in the channel_data
// of a signed subscribe payload. UserInfo is opaque to the server.
type Member struct {
	UserID   string          `json:"user_id"`
	UserInfo json.RawMessage `json:"user_info,omitempty"`
}

// UnmarshalJSON accepts user_id as either a JSON string or a number, since
// Pusher client libraries emit both.
func (m *Member) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID   json.RawMessage `json:"user_id"`
		UserInfo json.RawMessage `json:"user_info"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.UserID) == 0 {
		return fmt.Errorf("missing user_id")
	}

	var asString string
	if err := json.Unmarshal(raw.UserID, &asString); err == nil {
		m.UserID = asString
	} else {
		var asNumber json.Number
		if err := json.Unmarshal(raw.UserID, &asNumber); err != nil {
			return fmt.Errorf("user_id must be a string or number")
		}
		m.UserID = asNumber.String()
	}
	if m.UserID == "" {
		return fmt.Errorf("user_id must not be empty")
	}

	m.UserInfo = raw.UserInfo
	return nil
}

// MarshalJSON emits the {user_id, user_info} document broadcast in
// member_added events.
func (m Member) MarshalJSON() ([]byte, error) {
	buf := []byte(`{"user_id":`)
	buf = strconv.AppendQuote(buf, m.UserID)
	if len(m.UserInfo) > 0 {
		buf = append(buf, `,"user_info":`...)
		buf = append(buf, m.UserInfo...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// ParseChannelData decodes the channel_data string of a presence subscribe
// payload into a Member.
func ParseChannelData(channelData string) (Member, error) {
	var member Member
	if err := json.Unmarshal([]byte(channelData), &member); err != nil {
		return Member{}, fmt.Errorf("parse channel_data: %w", err)
	}
	return member, nil
}
