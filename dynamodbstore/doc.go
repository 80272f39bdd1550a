// Package dynamodbstore provides session storage using an AWS DynamoDB
// table. It implements the sessionstore.DB interface.
//
// The DynamoDB table is expected to have the following structure:
//
//	Hash Key: name="id" type="S"
//	Sort Key: none
//
// Each session item carries an absolute expiry timestamp in epoch
// milliseconds ("expires"), the serialized session payload ("sess") and a
// record kind tag ("type"). The attribute names match the connect-dynamodb
// middleware, so the table can be shared with applications using it. Items
// of other kinds may coexist in the same table; the store only ever
// touches items it addresses by key, and the bulk reaper filters on the
// record kind tag.
//
// If the table does not exist, the store creates it in the background with
// a small fixed provisioned capacity. Table creation can take many
// seconds, so its outcome is logged rather than returned; in production
// the table is normally provisioned ahead of time.
//
// DynamoDB's native time-to-live feature is not enabled on the table: it
// interprets attribute values as epoch seconds, while the expiry here is
// stored in milliseconds for compatibility with the middleware. Expired
// items are removed lazily on read, or in bulk by the reaper.
package dynamodbstore
