// Package redisstore provides session storage using Redis. It implements
// the sessionstore.DB interface.
//
// Each session record is stored as a JSON value at its prefixed key, with
// the record expiry mapped to the key's native Redis TTL. Redis removes
// expired keys itself, so this backend does not implement the
// sessionstore.Reaper interface: there is never anything to reap.
//
// Touch on a missing key sets nothing and returns no error.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jjeffery/errors"
	"github.com/redis/go-redis/v9"

	"github.com/tyrchen/connect-dynamodb/sessionstore"
)

// DB provides storage for sessions using Redis.
// It implements the sessionstore.DB interface.
type DB struct {
	client *redis.Client

	// TimeNow is used to obtain the current time.
	TimeNow func() time.Time
}

// NewDB creates a new Redis DB given the client.
func NewDB(client *redis.Client) *DB {
	return &DB{
		client:  client,
		TimeNow: time.Now,
	}
}

// NewSessionStore returns a session store persisting its sessions in
// Redis.
func (db *DB) NewSessionStore(config sessionstore.Config) *sessionstore.Store {
	return sessionstore.New(db, config)
}

// value is the JSON document stored at each key. The key's TTL carries
// the expiry, so it is not part of the document.
type value struct {
	Type string `json:"type,omitempty"`
	Sess string `json:"sess"`
}

// Get implements the sessionstore.DB interface. The record expiry is
// derived from the key's remaining TTL.
func (db *DB) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	errors := errors.With("id", id)

	pipe := db.client.Pipeline()
	getCmd := pipe.Get(ctx, id)
	pttlCmd := pipe.PTTL(ctx, id)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "cannot get record")
	}
	data, err := getCmd.Result()
	if err == redis.Nil {
		// not found
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot get record")
	}

	var val value
	if err := json.Unmarshal([]byte(data), &val); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal record")
	}
	var expires int64
	if ttl := pttlCmd.Val(); ttl > 0 {
		expires = db.TimeNow().Add(ttl).UnixMilli()
	}
	return &sessionstore.Record{
		ID:      id,
		Expires: expires,
		Type:    val.Type,
		Data:    val.Sess,
	}, nil
}

// Put implements the sessionstore.DB interface. A record that is already
// expired at write time is deleted instead of stored.
func (db *DB) Put(ctx context.Context, rec *sessionstore.Record) error {
	errors := errors.With("id", rec.ID)
	data, err := json.Marshal(value{Type: rec.Type, Sess: rec.Data})
	if err != nil {
		return errors.Wrap(err, "unable to marshal record")
	}
	var ttl time.Duration
	if rec.Expires > 0 {
		ttl = time.UnixMilli(rec.Expires).Sub(db.TimeNow())
		if ttl <= 0 {
			return db.Delete(ctx, rec.ID)
		}
	}
	if err := db.client.Set(ctx, rec.ID, data, ttl).Err(); err != nil {
		return errors.Wrap(err, "cannot save record")
	}
	return nil
}

// Touch implements the sessionstore.DB interface. An expiry in the past
// deletes the key; an expiry of zero removes the TTL.
func (db *DB) Touch(ctx context.Context, id string, expires int64) error {
	errors := errors.With("id", id)
	var err error
	switch {
	case expires <= 0:
		err = db.client.Persist(ctx, id).Err()
	case expires <= db.TimeNow().UnixMilli():
		err = db.client.Del(ctx, id).Err()
	default:
		err = db.client.PExpireAt(ctx, id, time.UnixMilli(expires)).Err()
	}
	if err != nil {
		return errors.Wrap(err, "cannot update record expiry")
	}
	return nil
}

// Delete implements the sessionstore.DB interface.
func (db *DB) Delete(ctx context.Context, id string) error {
	if err := db.client.Del(ctx, id).Err(); err != nil {
		return errors.Wrap(err, "cannot delete record").With("id", id)
	}
	return nil
}
