// Package cache implements the durable price cache.
//
// The cache keeps a bounded window of recent price samples per asset, the
// user-added asset definitions and the set of hidden catalog assets. Storage
// is delegated to a Backend (PostgreSQL, Redis or in-memory); the cache owns
// record encoding, window pruning, staleness purges and per-asset locking.
//
// Every operation fails with ErrStorageUnavailable until Initialize succeeds.
// Callers are expected to treat cache errors as non-fatal.
package cache
