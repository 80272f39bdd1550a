package testhelper

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tyrchen/connect-dynamodb/sessionstore"
)

// DBTest runs a set of common tests on a sessionstore.DB implementation.
// The expiry times used are real wall-clock times, so the tests work
// against backends with native expiry.
func DBTest(t *testing.T, db sessionstore.DB) {
	ctx := context.Background()
	const id = "sess:db-contract-test"
	defer db.Delete(ctx, id)

	// missing record
	rec, err := db.Get(ctx, id)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if rec != nil {
		t.Fatalf("got=%v, want=nil", rec)
	}

	// put and get back
	expires := time.Now().Add(time.Hour).UnixMilli()
	saveRec := sessionstore.Record{
		ID:      id,
		Expires: expires,
		Type:    sessionstore.RecordType,
		Data:    `{"user":"alice"}`,
	}
	if err := db.Put(ctx, &saveRec); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	rec, err = db.Get(ctx, id)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if rec == nil {
		t.Fatal("got=nil, want record")
	}
	if got, want := rec.ID, saveRec.ID; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
	if got, want := rec.Data, saveRec.Data; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
	if !closeEnough(rec.Expires, expires) {
		t.Fatalf("got=%v, want=%v", rec.Expires, expires)
	}

	// put replaces the whole record
	saveRec.Data = `{"user":"bob"}`
	if err := db.Put(ctx, &saveRec); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	rec, err = db.Get(ctx, id)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if got, want := rec.Data, saveRec.Data; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}

	// touch changes the expiry, nothing else
	touched := time.Now().Add(2 * time.Hour).UnixMilli()
	if err := db.Touch(ctx, id, touched); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	rec, err = db.Get(ctx, id)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if got, want := rec.Data, saveRec.Data; got != want {
		t.Fatalf("got=%v, want=%v", got, want)
	}
	if !closeEnough(rec.Expires, touched) {
		t.Fatalf("got=%v, want=%v", rec.Expires, touched)
	}

	// first delete
	if err := db.Delete(ctx, id); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	rec, err = db.Get(ctx, id)
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if rec != nil {
		t.Fatalf("got=%v, want=nil", rec)
	}

	// second delete should succeed, even though the record is gone
	if err := db.Delete(ctx, id); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
}

// StoreTest runs the session lifecycle tests from the middleware contract
// against a DB implementation, driving expiry with a simulated clock. It
// is not suitable for backends with native expiry, whose records
// disappear on their own wall-clock schedule.
func StoreTest(t *testing.T, db sessionstore.DB, clock *Clock) {
	ctx := context.Background()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := sessionstore.New(db, sessionstore.Config{
		Logger:  logger,
		TimeNow: clock.Now,
	})

	sess := sessionstore.Session{
		"cookie": map[string]interface{}{"maxAge": float64(5000)},
		"user":   "alice",
	}

	// set then get returns a deep-equal payload
	if err := store.Set(ctx, "abc123", sess); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	got, err := store.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if !reflect.DeepEqual(got, sess) {
		t.Fatalf("got=%v, want=%v", got, sess)
	}

	// touch pushes the expiry out without changing the payload
	clock.Advance(4 * time.Second)
	if err := store.Touch(ctx, "abc123", sess); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	clock.Advance(3 * time.Second)
	got, err = store.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if !reflect.DeepEqual(got, sess) {
		t.Fatalf("got=%v, want=%v", got, sess)
	}

	// once the max-age elapses the session is gone, and the physical
	// record is deleted as a side effect
	clock.Advance(6 * time.Second)
	got, err = store.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if got != nil {
		t.Fatalf("got=%v, want=nil", got)
	}
	rec, err := db.Get(ctx, "sess:abc123")
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if rec != nil {
		t.Fatalf("got=%v, want=nil", rec)
	}

	// destroy is idempotent and applies the key prefix itself
	if err := store.Set(ctx, "abc123", sess); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if err := store.Destroy(ctx, "abc123"); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	got, err = store.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}
	if got != nil {
		t.Fatalf("got=%v, want=nil", got)
	}
	if err := store.Destroy(ctx, "abc123"); err != nil {
		t.Fatalf("got=%v, want=nil", err)
	}

	// reap sweeps expired records but leaves live ones, for backends
	// that support it
	if _, ok := db.(sessionstore.Reaper); ok {
		longLived := sessionstore.Session{
			"cookie": map[string]interface{}{"maxAge": float64(60 * 60 * 1000)},
		}
		if err := store.Set(ctx, "short", sess); err != nil {
			t.Fatalf("got=%v, want=nil", err)
		}
		if err := store.Set(ctx, "long", longLived); err != nil {
			t.Fatalf("got=%v, want=nil", err)
		}
		clock.Advance(6 * time.Second)
		if err := store.Reap(ctx); err != nil {
			t.Fatalf("got=%v, want=nil", err)
		}
		rec, err = db.Get(ctx, "sess:short")
		if err != nil {
			t.Fatalf("got=%v, want=nil", err)
		}
		if rec != nil {
			t.Fatalf("got=%v, want=nil", rec)
		}
		rec, err = db.Get(ctx, "sess:long")
		if err != nil {
			t.Fatalf("got=%v, want=nil", err)
		}
		if rec == nil {
			t.Fatal("got=nil, want record")
		}
		if err := store.Destroy(ctx, "long"); err != nil {
			t.Fatalf("got=%v, want=nil", err)
		}
	}
}

// closeEnough tolerates the small drift of backends that derive expiry
// from a remaining TTL rather than storing the absolute timestamp.
func closeEnough(got, want int64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff < 5000
}
