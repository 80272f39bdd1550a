package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/jjeffery/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPrefix is the key prefix that namespaces session records
	// from other data in the same table.
	DefaultPrefix = "sess:"

	// DefaultTTL applies when the session payload does not declare a
	// numeric max-age.
	DefaultTTL = 24 * time.Hour
)

// Config contains optional settings for a Store. The zero value is valid.
type Config struct {
	// Prefix namespaces session keys. Defaults to DefaultPrefix.
	Prefix string

	// TTL is the time-to-live for sessions whose payload does not
	// declare a max-age. Defaults to DefaultTTL.
	TTL time.Duration

	// Codec serializes session payloads. Defaults to JSONCodec.
	Codec Codec

	// Logger receives errors from detached operations (lazy-expiry
	// cleanup, the background reaper). Defaults to the standard logger.
	Logger logrus.FieldLogger

	// TimeNow is used to obtain the current time. It is intended for
	// testing and defaults to time.Now.
	TimeNow func() time.Time

	// ReapInterval starts a background reaper with the given period.
	// The default of zero means no background timer is created and
	// expired records are only removed lazily on read.
	ReapInterval time.Duration
}

// Store persists middleware sessions in a key-value backend. It holds no
// mutable state apart from its configuration, so its methods are safe to
// call concurrently. Concurrent writes to the same session id are
// last-writer-wins.
type Store struct {
	db      DB
	prefix  string
	ttl     time.Duration
	codec   Codec
	logger  logrus.FieldLogger
	timeNow func() time.Time

	mutex sync.Mutex
	done  chan struct{}
}

// New creates a session store that persists sessions using db.
func New(db DB, config Config) *Store {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Codec == nil {
		config.Codec = JSONCodec{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	store := &Store{
		db:      db,
		prefix:  config.Prefix,
		ttl:     config.TTL,
		codec:   config.Codec,
		logger:  config.Logger,
		timeNow: config.TimeNow,
	}
	store.StartReaper(config.ReapInterval)
	return store
}

// Get returns the session with the given id, or nil if there is no live
// session. A record that has expired, or that has an empty payload, is
// treated as absent: the physical record is deleted as a side effect, and
// any failure of that cleanup is logged rather than returned.
func (ss *Store) Get(ctx context.Context, id string) (Session, error) {
	psid := ss.key(id)
	errors := errors.With("id", psid)
	rec, err := ss.db.Get(ctx, psid)
	if err != nil {
		return nil, errors.Wrap(err, "cannot get session record")
	}
	if rec == nil {
		return nil, nil
	}
	now := ss.timeNow().UnixMilli()
	if (rec.Expires > 0 && now >= rec.Expires) || rec.Data == "" {
		if err := ss.db.Delete(ctx, psid); err != nil {
			ss.logger.WithError(err).WithField("id", psid).
				Warn("cannot delete expired session record")
		}
		return nil, nil
	}
	sess, err := ss.codec.Decode(rec.Data)
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode session record")
	}
	return sess, nil
}

// Set saves the session under the given id, completely replacing any
// record already stored for it. The record expiry is now + the payload's
// cookie max-age, or now + the default TTL when no max-age is declared.
func (ss *Store) Set(ctx context.Context, id string, sess Session) error {
	psid := ss.key(id)
	errors := errors.With("id", psid)
	data, err := ss.codec.Encode(sess)
	if err != nil {
		return errors.Wrap(err, "cannot encode session")
	}
	rec := &Record{
		ID:      psid,
		Expires: ss.expiresAt(sess),
		Type:    RecordType,
		Data:    data,
	}
	if err := ss.db.Put(ctx, rec); err != nil {
		return errors.Wrap(err, "cannot save session record")
	}
	return nil
}

// Touch recomputes the session expiry with the same rule as Set and
// updates only the expiry of the stored record, leaving the payload
// untouched. If no record exists for the id, the outcome is
// backend-defined: see the DB.Touch documentation.
func (ss *Store) Touch(ctx context.Context, id string, sess Session) error {
	psid := ss.key(id)
	if err := ss.db.Touch(ctx, psid, ss.expiresAt(sess)); err != nil {
		return errors.Wrap(err, "cannot touch session record").With("id", psid)
	}
	return nil
}

// Destroy removes the session with the given id. The id is the raw
// session id; the key prefix is always applied internally. Destroying a
// session that does not exist is not an error.
func (ss *Store) Destroy(ctx context.Context, id string) error {
	psid := ss.key(id)
	if err := ss.db.Delete(ctx, psid); err != nil {
		return errors.Wrap(err, "cannot delete session record").With("id", psid)
	}
	return nil
}

// Reap deletes expired session records in bulk. It is a no-op for
// backends that do not implement the Reaper interface.
func (ss *Store) Reap(ctx context.Context) error {
	reaper, ok := ss.db.(Reaper)
	if !ok {
		return nil
	}
	if err := reaper.Reap(ctx, ss.timeNow().UnixMilli()); err != nil {
		return errors.Wrap(err, "cannot reap expired session records")
	}
	return nil
}

// StartReaper starts a background timer that calls Reap every interval.
// It is a no-op when interval is not positive or when the backend does
// not implement the Reaper interface. Call Close to stop the timer.
func (ss *Store) StartReaper(interval time.Duration) {
	if interval <= 0 {
		return
	}
	if _, ok := ss.db.(Reaper); !ok {
		return
	}
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	if ss.done != nil {
		// already running
		return
	}
	ss.done = make(chan struct{})
	go ss.reapLoop(interval, ss.done)
}

func (ss *Store) reapLoop(interval time.Duration, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := ss.Reap(context.Background()); err != nil {
				ss.logger.WithError(err).Warn("session reap failed")
			}
		case <-done:
			return
		}
	}
}

// Close stops the background reaper if one was started. It is a no-op
// otherwise.
func (ss *Store) Close() {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	if ss.done != nil {
		close(ss.done)
		ss.done = nil
	}
}

// key returns the prefixed record id for a raw session id.
func (ss *Store) key(id string) string {
	return ss.prefix + id
}

// expiresAt computes the absolute expiry in epoch milliseconds, relative
// to a single reading of the clock.
func (ss *Store) expiresAt(sess Session) int64 {
	now := ss.timeNow()
	if maxAge, ok := sess.MaxAge(); ok {
		return now.Add(maxAge).UnixMilli()
	}
	return now.Add(ss.ttl).UnixMilli()
}
