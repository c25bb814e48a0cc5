// Package sqlite provides a durable ResultStore and AuditSink on top of a
// single SQLite database file.
//
// The database is opened in WAL mode with a single connection so concurrent
// queue goroutines never hit SQLITE_BUSY. The schema is embedded and applied
// on Open together with incremental migrations tracked in user_version.
package sqlite
