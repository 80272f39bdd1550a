// Package postgresstore provides session storage using a PostgreSQL
// table. It implements the sessionstore.DB interface.
//
// The table has the following structure:
//
//	id      character varying(256) primary key
//	expires bigint null          -- epoch milliseconds
//	kind    text null            -- record kind tag
//	sess    text null            -- serialized session payload
//
// Touch on a missing id updates no rows and returns no error. Expired
// rows are removed lazily on read, or in bulk by Reap.
package postgresstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjeffery/errors"

	"github.com/tyrchen/connect-dynamodb/sessionstore"
)

// DefaultTableName is used when no table name is given.
const DefaultTableName = "http_sessions"

// DB provides storage for sessions using a PostgreSQL table.
// It implements the sessionstore.DB interface.
type DB struct {
	db        *sql.DB
	tableName string
}

// NewDB creates a new DB given a database handle and the PostgreSQL table
// name.
func NewDB(db *sql.DB, tableName string) *DB {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &DB{
		db:        db,
		tableName: tableName,
	}
}

// NewSessionStore returns a session store persisting its sessions in the
// PostgreSQL table.
func (db *DB) NewSessionStore(config sessionstore.Config) *sessionstore.Store {
	return sessionstore.New(db, config)
}

// CreateTable creates the sessions table if it does not exist.
func (db *DB) CreateTable(ctx context.Context) error {
	errors := errors.With("table", db.tableName)
	queryFmt := `create table if not exists %s(` +
		`id character varying(256) primary key,` +
		` expires bigint null,` +
		` kind text null,` +
		` sess text null)`
	query := fmt.Sprintf(queryFmt, db.tableName)
	if _, err := db.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "cannot create table")
	}
	return nil
}

// DropTable deletes the sessions table.
func (db *DB) DropTable(ctx context.Context) error {
	errors := errors.With("table", db.tableName)
	query := fmt.Sprintf(`drop table if exists %s`, db.tableName)
	if _, err := db.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, "cannot drop table")
	}
	return nil
}

// Get implements the sessionstore.DB interface.
func (db *DB) Get(ctx context.Context, id string) (*sessionstore.Record, error) {
	errors := errors.With("id", id, "table", db.tableName)
	var expires sql.NullInt64
	var kind, sess sql.NullString

	query := fmt.Sprintf("select expires, kind, sess from %s where id = $1", db.tableName)
	err := db.db.QueryRowContext(ctx, query, id).Scan(&expires, &kind, &sess)
	if err == sql.ErrNoRows {
		// not found
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot get record")
	}
	return &sessionstore.Record{
		ID:      id,
		Expires: expires.Int64,
		Type:    kind.String,
		Data:    sess.String,
	}, nil
}

// Put implements the sessionstore.DB interface.
func (db *DB) Put(ctx context.Context, rec *sessionstore.Record) error {
	errors := errors.With("id", rec.ID, "table", db.tableName)
	queryFmt := `insert into %s(id, expires, kind, sess) values($1, $2, $3, $4)` +
		` on conflict(id) do update set expires = $2, kind = $3, sess = $4`
	query := fmt.Sprintf(queryFmt, db.tableName)
	if _, err := db.db.ExecContext(ctx, query, rec.ID, rec.Expires, rec.Type, rec.Data); err != nil {
		return errors.Wrap(err, "cannot save record")
	}
	return nil
}

// Touch implements the sessionstore.DB interface.
func (db *DB) Touch(ctx context.Context, id string, expires int64) error {
	errors := errors.With("id", id, "table", db.tableName)
	query := fmt.Sprintf("update %s set expires = $1 where id = $2", db.tableName)
	if _, err := db.db.ExecContext(ctx, query, expires, id); err != nil {
		return errors.Wrap(err, "cannot update record expiry")
	}
	return nil
}

// Delete implements the sessionstore.DB interface.
func (db *DB) Delete(ctx context.Context, id string) error {
	errors := errors.With("id", id, "table", db.tableName)
	query := fmt.Sprintf("delete from %s where id = $1", db.tableName)
	if _, err := db.db.ExecContext(ctx, query, id); err != nil {
		return errors.Wrap(err, "cannot delete record")
	}
	return nil
}

// Reap implements the sessionstore.Reaper interface.
func (db *DB) Reap(ctx context.Context, before int64) error {
	errors := errors.With("table", db.tableName)
	query := fmt.Sprintf("delete from %s where expires > 0 and expires < $1", db.tableName)
	if _, err := db.db.ExecContext(ctx, query, before); err != nil {
		return errors.Wrap(err, "cannot delete expired records")
	}
	return nil
}
