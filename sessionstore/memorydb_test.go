package sessionstore

import (
	"context"
	"sync"
)

// memoryDB implements the DB interface and is used for testing the store
// logic without a real backend.
type memoryDB struct {
	mutex sync.Mutex
	m     map[string]*Record

	// failDelete, when set, is returned by Delete. Used to verify that
	// lazy-expiry cleanup failures are logged, not propagated.
	failDelete error
}

func newMemoryDB() *memoryDB {
	return &memoryDB{m: make(map[string]*Record)}
}

func (db *memoryDB) Get(ctx context.Context, id string) (*Record, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	rec, ok := db.m[id]
	if !ok {
		return nil, nil
	}
	cpy := *rec
	return &cpy, nil
}

func (db *memoryDB) Put(ctx context.Context, rec *Record) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	cpy := *rec
	db.m[rec.ID] = &cpy
	return nil
}

func (db *memoryDB) Touch(ctx context.Context, id string, expires int64) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if rec, ok := db.m[id]; ok {
		rec.Expires = expires
	}
	return nil
}

func (db *memoryDB) Delete(ctx context.Context, id string) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if db.failDelete != nil {
		return db.failDelete
	}
	delete(db.m, id)
	return nil
}

func (db *memoryDB) Reap(ctx context.Context, before int64) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for id, rec := range db.m {
		if rec.Expires > 0 && rec.Expires < before {
			delete(db.m, id)
		}
	}
	return nil
}
