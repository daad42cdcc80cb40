package protocol

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ChannelSignature computes the hex HMAC-SHA256 digest a client must present
// to subscribe to a private or presence channel. The signed string is
// "{socketId}:{channelName}" for private channels and
// "{socketId}:{channelName}:{channelData}" for presence channels, where
// channelData is the raw channel_data string from the subscribe payload.
func ChannelSignature(secret, socketID, channel, channelData string) string {
	signed := socketID + ":" + channel
	if channelData != "" {
		signed += ":" + channelData
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signed))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyChannelAuth checks the auth field of a subscribe payload, expected
// in the form "{appKey}:{hexdigest}". Comparison is constant time.
func VerifyChannelAuth(appKey, secret, auth, socketID, channel, channelData string) bool {
	key, signature, ok := strings.Cut(auth, ":")
	if !ok || key != appKey {
		return false
	}
	expected := ChannelSignature(secret, socketID, channel, channelData)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Query parameter names of the Pusher REST authentication scheme.
const (
	ParamAuthKey       = "auth_key"
	ParamAuthTimestamp = "auth_timestamp"
	ParamAuthVersion   = "auth_version"
	ParamAuthSignature = "auth_signature"
	ParamBodyMD5       = "body_md5"
)

// RequestStringToSign assembles the canonical string a Pusher REST request
// is signed over: "{METHOD}\n{path}\n{sorted query}", where the query
// excludes auth_signature and is sorted by key with lowercase comparison.
func RequestStringToSign(method, path string, query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if strings.EqualFold(k, ParamAuthSignature) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+query.Get(k))
	}

	return strings.ToUpper(method) + "\n" + path + "\n" + strings.Join(pairs, "&")
}

// SignRequest computes the hex HMAC-SHA256 signature for a REST request.
func SignRequest(secret, method, path string, query url.Values) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(RequestStringToSign(method, path, query)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRequestSignature validates a signed REST request: the auth_key must
// match the app, body_md5 (when a body is present) must match the payload,
// and auth_signature must match the canonical string. The error message is
// safe to return to the caller.
func VerifyRequestSignature(appKey, secret, method, path string, query url.Values, body []byte) error {
	if query.Get(ParamAuthKey) != appKey {
		return fmt.Errorf("unknown auth_key")
	}
	if query.Get(ParamAuthTimestamp) == "" {
		return fmt.Errorf("missing auth_timestamp")
	}
	if len(body) > 0 {
		sum := md5.Sum(body)
		if query.Get(ParamBodyMD5) != hex.EncodeToString(sum[:]) {
			return fmt.Errorf("body_md5 mismatch")
		}
	}
	signature := query.Get(ParamAuthSignature)
	expected := SignRequest(secret, method, path, query)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("invalid auth_signature")
	}
	return nil
}
