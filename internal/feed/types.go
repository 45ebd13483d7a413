package feed

import (
	"errors"
	"time"

	"github.com/rickgao/pricesync/internal/model"
)

// Errors
var (
	ErrFeedConnection  = errors.New("feed connection error")
	ErrMessageParse    = errors.New("feed message parse error")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// InvalidThreshold is the number of consecutive invalid values after which
// an asset is reported invalid.
const InvalidThreshold = 3

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Update is a validated price for one internal asset identifier.
type Update struct {
	AssetID string
	Price   float64
}

// Batch holds the valid updates decoded from one feed frame.
type Batch struct {
	Updates    []Update
	ReceivedAt time.Time
}

// Status is a snapshot of the feed connection state.
type Status struct {
	State       model.ConnectionState
	LastError   string    // Empty once a connection succeeds
	Invalid     []string  // Assets reported invalid, in report order
	Assets      []string  // Currently subscribed identifiers
	Attempts    int       // Connection attempts since Start
	ConnectedAt time.Time // Zero unless connected
}

// Connected reports whether the feed has an open connection.
func (s Status) Connected() bool {
	return s.State == model.StateConnected
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Full URL including asset list and token
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for control frames
	BufferSize       int           // Message channel buffer size
}

// Config configures the Feed.
type Config struct {
	URL              string        // Base WebSocket URL (e.g., wss://ws.coincap.io/prices)
	APIKey           string        // Sent as the apiKey query parameter when set
	ReconnectDelay   time.Duration // Fixed delay before every reconnect
	HandshakeTimeout time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	BufferSize       int // Client message buffer and output channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:              "wss://ws.coincap.io/prices",
		ReconnectDelay:   3 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}
