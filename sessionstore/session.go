package sessionstore

import (
	"encoding/json"
	"time"

	"github.com/jjeffery/errors"
)

// Session is the opaque session payload handed to the store by the
// middleware layer. Its contents round-trip through the codec unchanged.
type Session map[string]interface{}

// MaxAge returns the session's declared max-age, if it has a numeric one.
// Connect-style middleware records it in milliseconds under cookie.maxAge,
// or cookie.originalMaxAge once the cookie has been sent to the client.
func (s Session) MaxAge() (time.Duration, bool) {
	cookie, ok := s["cookie"].(map[string]interface{})
	if !ok {
		return 0, false
	}
	for _, key := range []string{"maxAge", "originalMaxAge"} {
		if ms, ok := toMillis(cookie[key]); ok {
			return time.Duration(ms) * time.Millisecond, true
		}
	}
	return 0, false
}

// toMillis converts the numeric types a decoded JSON document can carry.
func toMillis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// Codec serializes session payloads to the textual form stored in the
// backend. The encoding must round-trip: decoding what was last encoded
// yields an equivalent payload.
type Codec interface {
	Encode(sess Session) (string, error)
	Decode(data string) (Session, error)
}

// JSONCodec is the default codec. It produces the same wire format as the
// middleware's own serializer, so tables can be shared with it.
type JSONCodec struct{}

// Encode implements the Codec interface.
func (JSONCodec) Encode(sess Session) (string, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return "", errors.Wrap(err, "cannot marshal session to JSON")
	}
	return string(data), nil
}

// Decode implements the Codec interface.
func (JSONCodec) Decode(data string) (Session, error) {
	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, errors.Wrap(err, "invalid JSON in session record")
	}
	return sess, nil
}
