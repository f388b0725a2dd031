// Package store is the durable-write relay backed by SQLite.
//
// The in-memory router and engine are authoritative; this package only
// mirrors what they do. Every write method returns immediately after
// queueing. A single worker goroutine applies the queue in order. When the
// queue is full, or a statement fails, the write is logged and dropped.
//
// The schema is embedded and applied on Open.
package store
