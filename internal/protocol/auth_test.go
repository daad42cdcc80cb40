package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	testAppKey = "test-app-key"
	testSecret = "test-app-secret"
)

func TestVerifyChannelAuthPrivate(t *testing.T) {
	socketID := "1234.5678"
	channel := "private-room"

	auth := testAppKey + ":" + ChannelSignature(testSecret, socketID, channel, "")
	assert.True(t, VerifyChannelAuth(testAppKey, testSecret, auth, socketID, channel, ""))
}

func TestVerifyChannelAuthPresence(t *testing.T) {
	socketID := "1234.5678"
	channel := "presence-room"
	channelData := `{"user_id":"alice","user_info":{"name":"Alice"}}`

	auth := testAppKey + ":" + ChannelSignature(testSecret, socketID, channel, channelData)
	assert.True(t, VerifyChannelAuth(testAppKey, testSecret, auth, socketID, channel, channelData))

	// Tampered channel_data must not verify.
	assert.False(t, VerifyChannelAuth(testAppKey, testSecret, auth, socketID, channel, `{"user_id":"bob"}`))
}

func TestVerifyChannelAuthRejectsBadInput(t *testing.T) {
	socketID := "1234.5678"
	channel := "private-room"
	signature := ChannelSignature(testSecret, socketID, channel, "")

	// Wrong app key prefix.
	assert.False(t, VerifyChannelAuth(testAppKey, testSecret, "other-key:"+signature, socketID, channel, ""))
	// No colon separator.
	assert.False(t, VerifyChannelAuth(testAppKey, testSecret, signature, socketID, channel, ""))
	// Signature for a different socket.
	assert.False(t, VerifyChannelAuth(testAppKey, testSecret, testAppKey+":"+signature, "9999.9999", channel, ""))
	// Empty auth.
	assert.False(t, VerifyChannelAuth(testAppKey, testSecret, "", socketID, channel, ""))
}

func TestRequestStringToSign(t *testing.T) {
	query := url.Values{}
	query.Set("auth_key", testAppKey)
	query.Set("auth_timestamp", "1700000000")
	query.Set("auth_version", "1.0")
	query.Set("auth_signature", "should-be-excluded")

	signed := RequestStringToSign("post", "/apps/1/events", query)
	assert.Equal(t, "POST\n/apps/1/events\nauth_key=test-app-key&auth_timestamp=1700000000&auth_version=1.0", signed)
}

func TestVerifyRequestSignature(t *testing.T) {
	body := []byte(`{"name":"order-created","channel":"orders","data":"{}"}`)
	sum := md5.Sum(body)

	query := url.Values{}
	query.Set("auth_key", testAppKey)
	query.Set("auth_timestamp", "1700000000")
	query.Set("auth_version", "1.0")
	query.Set("body_md5", hex.EncodeToString(sum[:]))
	query.Set("auth_signature", SignRequest(testSecret, "POST", "/apps/1/events", query))

	err := VerifyRequestSignature(testAppKey, testSecret, "POST", "/apps/1/events", query, body)
	assert.NoError(t, err)
}

func TestVerifyRequestSignatureFailures(t *testing.T) {
	query := url.Values{}
	query.Set("auth_key", testAppKey)
	query.Set("auth_timestamp", "1700000000")
	query.Set("auth_version", "1.0")
	query.Set("auth_signature", SignRequest(testSecret, "GET", "/apps/1/channels", query))

	// Valid baseline.
	assert.NoError(t, VerifyRequestSignature(testAppKey, testSecret, "GET", "/apps/1/channels", query, nil))

	// Wrong auth_key.
	bad := url.Values{}
	for k, v := range query {
		bad[k] = v
	}
	bad.Set("auth_key", "other")
	assert.Error(t, VerifyRequestSignature(testAppKey, testSecret, "GET", "/apps/1/channels", bad, nil))

	// Missing timestamp.
	bad = url.Values{}
	bad.Set("auth_key", testAppKey)
	bad.Set("auth_signature", "whatever")
	assert.Error(t, VerifyRequestSignature(testAppKey, testSecret, "GET", "/apps/1/channels", bad, nil))

	// Signed with the wrong secret.
	bad = url.Values{}
	bad.Set("auth_key", testAppKey)
	bad.Set("auth_timestamp", "1700000000")
	bad.Set("auth_signature", SignRequest("wrong-secret", "GET", "/apps/1/channels", bad))
	assert.Error(t, VerifyRequestSignature(testAppKey, testSecret, "GET", "/apps/1/channels", bad, nil))

	// Body present but body_md5 missing.
	assert.Error(t, VerifyRequestSignature(testAppKey, testSecret, "GET", "/apps/1/channels", query, []byte(`{}`)))
}
