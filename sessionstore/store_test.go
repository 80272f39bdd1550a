package sessionstore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/jjeffery/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nopLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeClock provides a controllable time source for expiry tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(db DB) (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := New(db, Config{
		Logger:  nopLogger(),
		TimeNow: clock.Now,
	})
	return store, clock
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, _ := newTestStore(db)

	sess := Session{
		"cookie": map[string]interface{}{"maxAge": float64(5000)},
		"user":   "alice",
	}
	require.NoError(t, store.Set(ctx, "abc123", sess))

	got, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	// the record is stored under the prefixed key
	rec, err := db.Get(ctx, "sess:abc123")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, RecordType, rec.Type)
}

func TestGetAbsentSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(newMemoryDB())

	sess, err := store.Get(ctx, "never-set")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestLazyExpiry(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, clock := newTestStore(db)

	sess := Session{
		"cookie": map[string]interface{}{"maxAge": float64(5000)},
		"user":   "alice",
	}
	require.NoError(t, store.Set(ctx, "abc123", sess))

	clock.Advance(6 * time.Second)

	got, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)

	// expired record was physically deleted as a side effect
	rec, err := db.Get(ctx, "sess:abc123")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestLazyExpiryCleanupFailureIsNotPropagated(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, clock := newTestStore(db)

	sess := Session{"cookie": map[string]interface{}{"maxAge": float64(1000)}}
	require.NoError(t, store.Set(ctx, "abc123", sess))

	clock.Advance(2 * time.Second)
	db.failDelete = errors.New("backend unavailable")

	got, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDefaultTTL(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, clock := newTestStore(db)

	// no cookie max-age declared
	require.NoError(t, store.Set(ctx, "abc123", Session{"user": "bob"}))

	rec, err := db.Get(ctx, "sess:abc123")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, clock.Now().Add(DefaultTTL).UnixMilli(), rec.Expires)

	// still live just inside the one-day window
	clock.Advance(DefaultTTL - time.Second)
	sess, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.NotNil(t, sess)

	clock.Advance(2 * time.Second)
	sess, err = store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestEmptyPayloadTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, clock := newTestStore(db)

	rec := &Record{
		ID:      "sess:abc123",
		Expires: clock.Now().Add(time.Hour).UnixMilli(),
		Type:    RecordType,
	}
	require.NoError(t, db.Put(ctx, rec))

	sess, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, sess)

	got, err := db.Get(ctx, "sess:abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMalformedPayloadIsAnError(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, clock := newTestStore(db)

	rec := &Record{
		ID:      "sess:abc123",
		Expires: clock.Now().Add(time.Hour).UnixMilli(),
		Type:    RecordType,
		Data:    "{not json",
	}
	require.NoError(t, db.Put(ctx, rec))

	sess, err := store.Get(ctx, "abc123")
	assert.Error(t, err)
	assert.Nil(t, sess)
}

func TestDestroyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(newMemoryDB())

	require.NoError(t, store.Set(ctx, "abc123", Session{"user": "alice"}))
	require.NoError(t, store.Destroy(ctx, "abc123"))

	sess, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, sess)

	// destroying a session that was never set is not an error
	require.NoError(t, store.Destroy(ctx, "never-set"))
}

func TestTouchUpdatesOnlyExpiry(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, clock := newTestStore(db)

	sess := Session{
		"cookie": map[string]interface{}{"maxAge": float64(5000)},
		"user":   "alice",
	}
	require.NoError(t, store.Set(ctx, "abc123", sess))

	clock.Advance(4 * time.Second)
	require.NoError(t, store.Touch(ctx, "abc123", sess))

	// the original expiry has elapsed, but touch pushed it out
	clock.Advance(3 * time.Second)
	got, err := store.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, sess, got)
}

func TestReap(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	store, clock := newTestStore(db)

	require.NoError(t, store.Set(ctx, "short", Session{
		"cookie": map[string]interface{}{"maxAge": float64(1000)},
	}))
	require.NoError(t, store.Set(ctx, "long", Session{
		"cookie": map[string]interface{}{"maxAge": float64(60000)},
	}))

	clock.Advance(2 * time.Second)
	require.NoError(t, store.Reap(ctx))

	rec, err := db.Get(ctx, "sess:short")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = db.Get(ctx, "sess:long")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestStartReaperDisabledByDefault(t *testing.T) {
	store, _ := newTestStore(newMemoryDB())

	// zero interval means no timer is created; Close is then a no-op
	store.StartReaper(0)
	store.Close()
	store.Close()
}
