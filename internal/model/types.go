package model

import (
	"time"

	"github.com/google/uuid"
)

// HistoryWindow is the maximum number of samples kept per asset.
const HistoryWindow = 10

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// AssetRecord describes a tracked asset, either from the seed catalog or added by the user.
type AssetRecord struct {
	ID          string  `json:"id"`          // Primary key (e.g., "bitcoin")
	Name        string  `json:"name"`        // Display name
	Symbol      string  `json:"symbol"`      // Ticker symbol (e.g., "BTC")
	MarketCap   float64 `json:"marketCap"`   // Market capitalization (USD)
	Volume24h   float64 `json:"volume24h"`   // 24-hour volume (USD)
	Supply      float64 `json:"supply"`      // Circulating supply
	Description string  `json:"description"` // Descriptive text
	Rank        int     `json:"rank"`        // Positive, conventionally unique

	// Static fallbacks used until live or cached prices exist.
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// -----------------------------------------------------------------------------
// Price Types
// -----------------------------------------------------------------------------

// PriceSample is a single observed price for an asset.
type PriceSample struct {
	AssetID   string    `json:"assetId"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionState is the streaming feed connection state.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected" // reconnect pending or shut down
)

// -----------------------------------------------------------------------------
// View Types
// -----------------------------------------------------------------------------

// AssetView is the display-ready record derived for one asset.
type AssetView struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Symbol        string        `json:"symbol"`
	Rank          int           `json:"rank"`
	Supply        float64       `json:"supply"`
	MarketCap     float64       `json:"marketCap"`
	Volume24h     float64       `json:"volume24h"`
	Description   string        `json:"description"`
	CurrentPrice  float64       `json:"currentPrice"`
	ChangePercent float64       `json:"changePercent"`
	Live          bool          `json:"live"`      // CurrentPrice came from the feed this session
	UpdatedAt     time.Time     `json:"updatedAt"` // Zero when no sample exists
	Custom        bool          `json:"custom"`    // User-added
	History       []PriceSample `json:"history"`   // Ascending, at most HistoryWindow
}

// SyncStatus is the global status exposed next to the per-asset views.
type SyncStatus struct {
	SessionID       uuid.UUID       `json:"sessionId"`
	ConnectionState ConnectionState `json:"connectionState"`
	Connected       bool            `json:"connected"`
	LastError       string          `json:"lastError,omitempty"`
	Invalidated     []string        `json:"invalidated"`
	Tracked         int             `json:"tracked"`
	StorageDegraded bool            `json:"storageDegraded"`
}
