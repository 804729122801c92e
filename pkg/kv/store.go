// Package kv defines the durable key/value persistence contract used by the
// dialogue engine, along with in-memory, file-backed, and PostgreSQL-backed
// implementations.
//
// The contract is deliberately tiny: string keys, string values, an explicit
// Persist flush. The seen-dialogue store and the locale manager are the only
// consumers; each owns its own keys. A missing key is not an error — Get
// returns the empty string, matching the "persistence gaps are defaults"
// policy of the engine.
//
// All implementations are safe for concurrent use.
package kv

import "context"

// Store is the durable key/value storage contract.
type Store interface {
	// Get returns the value stored under key, or "" when the key is absent.
	// An error is returned only for storage-level failures (I/O, connection),
	// never for a missing key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value. The write may
	// be buffered until [Store.Persist] is called; implementations that write
	// through immediately document that behaviour.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Persist flushes buffered writes to durable storage. Implementations
	// that write through on Set return nil.
	Persist(ctx context.Context) error
}
