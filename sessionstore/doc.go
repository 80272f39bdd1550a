// Package sessionstore provides a session store for persistence of HTTP
// session data in a key-value backend. The store fulfils the contract
// expected by connect-style session middleware: load, save, destroy and
// refresh-expiry of small serialized session records.
//
// Session records are namespaced with a configurable key prefix so they
// can share a table with other item kinds, and carry an absolute expiry
// timestamp in epoch milliseconds. Expired records are deleted lazily
// when they are read; an optional reaper can sweep them in bulk.
//
// Backends implement the DB interface. See the dynamodbstore,
// redisstore, postgresstore and memorystore packages.
package sessionstore
