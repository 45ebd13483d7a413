// Package feed implements the streaming price feed client.
//
// The Feed:
//   - Holds one WebSocket connection subscribed to the tracked asset list
//   - Normalizes vendor identifiers through a static alias table
//   - Counts consecutive invalid values per asset and reports an asset
//     invalid after three in a row
//   - Reconnects after a fixed delay on close, error or asset-list change
//
// Connection state is owned by the Feed and read through Status.
package feed
