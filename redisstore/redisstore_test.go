package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyrchen/connect-dynamodb/internal/testhelper"
	"github.com/tyrchen/connect-dynamodb/sessionstore"
)

func newDB(t *testing.T) (*DB, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewDB(client), mr
}

func TestRedisDBContract(t *testing.T) {
	db, _ := newDB(t)
	testhelper.DBTest(t, db)
}

func TestRedisTTLExpiration(t *testing.T) {
	ctx := context.Background()
	db, mr := newDB(t)
	store := db.NewSessionStore(sessionstore.Config{})

	sess := sessionstore.Session{
		"cookie": map[string]interface{}{"maxAge": float64(5000)},
		"user":   "alice",
	}
	require.NoError(t, store.Set(ctx, "abc123", sess))

	got, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	// the key carries the cookie max-age as its native TTL
	assert.InDelta(t, 5*time.Second, mr.TTL("sess:abc123"), float64(time.Second))

	mr.FastForward(6 * time.Second)

	got, err = store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("sess:abc123"))
}

func TestRedisPutExpiredRecord(t *testing.T) {
	ctx := context.Background()
	db, mr := newDB(t)

	rec := &sessionstore.Record{
		ID:      "sess:stale",
		Expires: time.Now().Add(-time.Minute).UnixMilli(),
		Type:    sessionstore.RecordType,
		Data:    `{"user":"alice"}`,
	}
	require.NoError(t, db.Put(ctx, rec))
	assert.False(t, mr.Exists("sess:stale"))
}

func TestRedisRecordWithoutExpiry(t *testing.T) {
	ctx := context.Background()
	db, _ := newDB(t)

	rec := &sessionstore.Record{
		ID:   "sess:eternal",
		Type: sessionstore.RecordType,
		Data: `{"user":"alice"}`,
	}
	require.NoError(t, db.Put(ctx, rec))

	got, err := db.Get(ctx, "sess:eternal")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(0), got.Expires)
	assert.Equal(t, rec.Data, got.Data)
}

func TestRedisTouchMissingKey(t *testing.T) {
	ctx := context.Background()
	db, mr := newDB(t)

	// touching a key that does not exist sets nothing
	err := db.Touch(ctx, "sess:missing", time.Now().Add(time.Hour).UnixMilli())
	require.NoError(t, err)
	assert.False(t, mr.Exists("sess:missing"))
}

func TestRedisNotAReaper(t *testing.T) {
	db, _ := newDB(t)
	_, ok := interface{}(db).(sessionstore.Reaper)
	assert.False(t, ok)
}
