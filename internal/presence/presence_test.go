package presence

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelDataStringUserID(t *testing.T) {
	member, err := ParseChannelData(`{"user_id":"alice","user_info":{"name":"Alice"}}`)
	require.NoError(t, err)
	assert.Equal(t, "alice", member.UserID)
	assert.JSONEq(t, `{"name":"Alice"}`, string(member.UserInfo))
}

func TestParseChannelDataNumericUserID(t *testing.T) {
	member, err := ParseChannelData(`{"user_id":42}`)
	require.NoError(t, err)
	assert.Equal(t, "42", member.UserID)
	assert.Empty(t, member.UserInfo)
}

func TestParseChannelDataErrors(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`{}`,
		`{"user_id":""}`,
		`{"user_id":{"nested":true}}`,
		`{"user_info":{"name":"Alice"}}`,
	}
	for _, input := range cases {
		_, err := ParseChannelData(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestMemberMarshal(t *testing.T) {
	member := Member{UserID: "alice", UserInfo: json.RawMessage(`{"name":"Alice"}`)}

	data, err := json.Marshal(member)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"alice","user_info":{"name":"Alice"}}`, string(data))
}

func TestMemberMarshalWithoutInfo(t *testing.T) {
	data, err := json.Marshal(Member{UserID: "bob"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"bob"}`, string(data))
}

func TestBuildRoster(t *testing.T) {
	members := []Member{
		{UserID: "alice", UserInfo: json.RawMessage(`{"name":"Alice"}`)},
		{UserID: "bob"},
		{UserID: "alice", UserInfo: json.RawMessage(`{"name":"Alice B"}`)},
	}

	roster := BuildRoster(members)
	assert.Equal(t, []string{"alice", "bob"}, roster.IDs)
	assert.Equal(t, 2, roster.Count)
	// Latest user_info for a duplicated user wins; empty info becomes null.
	assert.JSONEq(t, `{"name":"Alice B"}`, string(roster.Hash["alice"]))
	assert.JSONEq(t, `null`, string(roster.Hash["bob"]))
}

func TestBuildRosterEmpty(t *testing.T) {
	roster := BuildRoster(nil)
	assert.Empty(t, roster.IDs)
	assert.Zero(t, roster.Count)

	data, err := json.Marshal(roster)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ids":[],"hash":{},"count":0}`, string(data))
}

func TestContains(t *testing.T) {
	members := []Member{{UserID: "alice"}, {UserID: "bob"}}
	assert.True(t, Contains(members, "alice"))
	assert.False(t, Contains(members, "carol"))
	assert.False(t, Contains(nil, "alice"))
}
