package cache

import "context"

// Table names a logical key/value table.
type Table string

const (
	TablePrices       Table = "prices"
	TableCustomAssets Table = "customAssets"
	TableHiddenAssets Table = "hiddenAssets"
)

// Tables lists every logical table.
var Tables = []Table{TablePrices, TableCustomAssets, TableHiddenAssets}

// Backend stores opaque JSON values keyed by asset identifier.
type Backend interface {
	// Open connects and prepares storage, migrating the schema if needed.
	Open(ctx context.Context) error

	// Get returns the value for key, or false if absent.
	Get(ctx context.Context, table Table, key string) ([]byte, bool, error)

	// Put upserts the value for key.
	Put(ctx context.Context, table Table, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, table Table, key string) error

	// Scan returns every key/value pair in the table.
	Scan(ctx context.Context, table Table) (map[string][]byte, error)

	// Close releases backend resources.
	Close() error
}
