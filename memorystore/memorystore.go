// Package memorystore has a memory-backed session DB for testing and
// development. It implements the sessionstore.DB interface.
package memorystore

import (
	"context"
	"sync"

	"github.com/tyrchen/connect-dynamodb/sessionstore"
)

// DB implements the sessionstore.DB interface using a map. It is intended
// for testing.
//
// Touch on a missing id updates nothing and returns no error.
type DB struct {
	mutex sync.Mutex
	m     map[string]*sessionstore.Record
}

// NewDB creates a new memory DB.
func NewDB() *DB {
	return &DB{}
}

// NewSessionStore returns a session store persisting its sessions in
// memory.
func (db *DB) NewSessionStore(config sessionstore.Config) *sessionstore.Store {
	return sessionstore.New(db, config)
}

// Get implements the sessionstore.DB interface.
func (db *DB) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return cloneRecord(db.m[id]), nil
}

// Put implements the sessionstore.DB interface.
func (db *DB) Put(ctx context.Context, rec *sessionstore.Record) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if db.m == nil {
		db.m = make(map[string]*sessionstore.Record)
	}
	db.m[rec.ID] = cloneRecord(rec)
	return nil
}

// Touch implements the sessionstore.DB interface.
func (db *DB) Touch(ctx context.Context, id string, expires int64) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if rec, ok := db.m[id]; ok {
		rec.Expires = expires
	}
	return nil
}

// Delete implements the sessionstore.DB interface.
func (db *DB) Delete(ctx context.Context, id string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	delete(db.m, id)
	return nil
}

// Reap implements the sessionstore.Reaper interface.
func (db *DB) Reap(ctx context.Context, before int64) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for id, rec := range db.m {
		if rec.Expires > 0 && rec.Expires < before {
			delete(db.m, id)
		}
	}
	return nil
}

func cloneRecord(rec *sessionstore.Record) *sessionstore.Record {
	if rec == nil {
		return nil
	}
	cpy := *rec
	return &cpy
}
