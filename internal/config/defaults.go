package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID       = "pricesync"
	DefaultWSURL            = "wss://ws.coincap.io/prices"
	DefaultReconnectDelay   = 3 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultFeedBufferSize   = 1000
	DefaultRestURL          = "https://api.coincap.io/v2"
	DefaultAPITimeout       = 30 * time.Second
	DefaultMaxRetries       = 3
	DefaultSearchLimit      = 10
	DefaultDriver           = DriverPostgres
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisKeyPrefix   = "pricesync"
	DefaultHistoryWindow    = 10
	DefaultStaleAfter       = 24 * time.Hour
	DefaultPurgeInterval    = 1 * time.Hour
	DefaultHTTPPort         = 8080
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Feed defaults
	if c.Feed.WSURL == "" {
		c.Feed.WSURL = DefaultWSURL
	}
	if c.Feed.ReconnectDelay == 0 {
		c.Feed.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Feed.HandshakeTimeout == 0 {
		c.Feed.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Catalog defaults
	if c.Catalog.RestURL == "" {
		c.Catalog.RestURL = DefaultRestURL
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultAPITimeout
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = DefaultMaxRetries
	}
	if c.Catalog.SearchLimit == 0 {
		c.Catalog.SearchLimit = DefaultSearchLimit
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	applyDBDefaults(&c.Storage.Postgres)
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = DefaultRedisAddr
	}
	if c.Storage.Redis.KeyPrefix == "" {
		c.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Engine defaults
	if c.Engine.HistoryWindow == 0 {
		c.Engine.HistoryWindow = DefaultHistoryWindow
	}
	if c.Engine.StaleAfter == 0 {
		c.Engine.StaleAfter = DefaultStaleAfter
	}
	if c.Engine.PurgeInterval == 0 {
		c.Engine.PurgeInterval = DefaultPurgeInterval
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
