package sessionstore

import "context"

// RecordType tags session records so they can be distinguished from other
// item kinds sharing the same table.
const RecordType = "connect-session"

// Record contains the session information that is persisted to the DB.
type Record struct {
	ID      string // prefixed session id, unique key in the backend
	Expires int64  // epoch milliseconds, zero means no expiry recorded
	Type    string // record kind tag, normally RecordType
	Data    string // serialized session payload
}

// DB is the interface used by the session store for persisting session
// records to a key-value backend.
type DB interface {
	// Get returns the record with the given id, or nil if no record
	// exists. The read is as consistent as the backend allows.
	Get(ctx context.Context, id string) (*Record, error)

	// Put saves the record, completely replacing any existing record
	// with the same id.
	Put(ctx context.Context, rec *Record) error

	// Touch updates the expiry of the record with the given id, leaving
	// all other attributes untouched. Behavior when no record exists at
	// the id is backend-defined: see the backend package comment.
	Touch(ctx context.Context, id string, expires int64) error

	// Delete removes the record with the given id. It is not an error
	// if the record does not exist.
	Delete(ctx context.Context, id string) error
}

// Reaper is implemented by backends that can delete expired records in
// bulk. Backends with native expiry (eg Redis) have nothing to reap and
// do not implement it.
type Reaper interface {
	// Reap deletes all session records that expired before the given
	// epoch millisecond timestamp.
	Reap(ctx context.Context, before int64) error
}
