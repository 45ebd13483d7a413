// Package database provides the PostgreSQL connection pool and schema
// migrations used by the durable price cache.
//
// Tables:
//   - prices: one JSONB record of recent samples per asset
//   - custom_assets: one JSONB AssetRecord per user-added asset
//   - hidden_assets: static catalog identifiers the user removed or the feed invalidated
//   - schema_version: single-row schema version
package database
