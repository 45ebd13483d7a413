// Package engine fuses the static catalog, user-added assets, live feed
// updates and cached history into one derived view per asset.
//
// The Engine:
//   - Loads user assets, hidden identifiers and cached samples at startup
//   - Keeps a bounded, timestamp-ascending rolling history per asset
//   - Computes change relative to the first price seen this session
//   - Evicts assets the feed reports invalid and resubscribes without them
//   - Adds and removes user assets
//
// Storage failures never stop the engine; it degrades to session-only
// in-memory state and logs.
package engine
