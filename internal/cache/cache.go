package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/pricesync/internal/metrics"
	"github.com/rickgao/pricesync/internal/model"
)

// Errors
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageWriteFailed = errors.New("storage write failed")
)

// DefaultMaxAge is the PurgeStale age used when none is given.
const DefaultMaxAge = 24 * time.Hour

// priceRecord is the value stored per asset in the prices table.
type priceRecord struct {
	AssetID string              `json:"assetId"`
	Samples []model.PriceSample `json:"samples"`
}

// hiddenRecord is the value stored per asset in the hidden assets table.
type hiddenRecord struct {
	AssetID  string    `json:"assetId"`
	HiddenAt time.Time `json:"hiddenAt"`
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithWindow sets the number of samples kept per asset.
func WithWindow(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.window = n
		}
	}
}

// WithClock sets the time source used for sample timestamps and purges.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is the durable price cache.
type Cache struct {
	backend Backend
	logger  *slog.Logger
	window  int
	now     func() time.Time

	// Per-asset read-modify-write serialization
	locks keyedMutex

	mu      sync.RWMutex
	open    bool
	openErr error
}

// New creates a Cache on top of backend. Call Initialize before use.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{
		backend: backend,
		logger:  slog.Default(),
		window:  model.HistoryWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize opens the backend. Calls after a successful open are no-ops;
// after a failed open the next call retries.
func (c *Cache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open {
		return nil
	}

	if err := c.backend.Open(ctx); err != nil {
		c.openErr = err
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	c.open = true
	c.openErr = nil
	c.logger.Debug("price cache initialized", "window", c.window)
	return nil
}

// Close closes the backend.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil
	}
	c.open = false
	return c.backend.Close()
}

// ready returns ErrStorageUnavailable unless Initialize succeeded.
func (c *Cache) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.open {
		return nil
	}
	if c.openErr != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, c.openErr)
	}
	return fmt.Errorf("%w: not initialized", ErrStorageUnavailable)
}

// RecordPrice upserts a sample for assetID stamped with the current time and
// prunes the asset's samples to the most recent window. A price equal to the
// newest stored sample refreshes that sample's timestamp instead of adding a
// second copy, so a stream that repeats a price cannot flush older history.
func (c *Cache) RecordPrice(ctx context.Context, assetID string, price float64) error {
	if err := c.ready(); err != nil {
		return err
	}

	unlock := c.locks.Lock(assetID)
	defer unlock()

	rec, _, err := c.readPriceRecord(ctx, assetID)
	if err != nil {
		return err
	}

	rec.AssetID = assetID
	rec.Samples = pruneSamples(rec.Samples, c.window)
	if n := len(rec.Samples); n > 0 && rec.Samples[n-1].Price == price {
		rec.Samples[n-1].Timestamp = c.now()
	} else {
		rec.Samples = append(rec.Samples, model.PriceSample{
			AssetID:   assetID,
			Price:     price,
			Timestamp: c.now(),
		})
		rec.Samples = pruneSamples(rec.Samples, c.window)
	}

	return c.writePriceRecord(ctx, "record_price", rec)
}

// ReadLatestPrice returns the most recent sample for assetID.
func (c *Cache) ReadLatestPrice(ctx context.Context, assetID string) (model.PriceSample, bool, error) {
	if err := c.ready(); err != nil {
		return model.PriceSample{}, false, err
	}

	rec, ok, err := c.readPriceRecord(ctx, assetID)
	if err != nil || !ok || len(rec.Samples) == 0 {
		return model.PriceSample{}, false, err
	}
	return rec.Samples[len(rec.Samples)-1], true, nil
}

// ReadAllPrices returns every stored sample, ordered by asset then timestamp.
func (c *Cache) ReadAllPrices(ctx context.Context) ([]model.PriceSample, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	rows, err := c.backend.Scan(ctx, TablePrices)
	if err != nil {
		return nil, fmt.Errorf("%w: scan prices: %w", ErrStorageUnavailable, err)
	}

	ids := sortedKeys(rows)
	var out []model.PriceSample
	for _, id := range ids {
		var rec priceRecord
		if err := json.Unmarshal(rows[id], &rec); err != nil {
			c.logger.Warn("skipping corrupt price record", "asset", id, "error", err)
			continue
		}
		for _, s := range rec.Samples {
			s.AssetID = id
			out = append(out, s)
		}
	}
	return out, nil
}

// DeletePrice removes all stored samples for assetID.
func (c *Cache) DeletePrice(ctx context.Context, assetID string) error {
	if err := c.ready(); err != nil {
		return err
	}

	unlock := c.locks.Lock(assetID)
	defer unlock()

	if err := c.backend.Delete(ctx, TablePrices, assetID); err != nil {
		metrics.CacheWriteFailed("delete_price")
		return fmt.Errorf("%w: delete price %s: %w", ErrStorageWriteFailed, assetID, err)
	}
	return nil
}

// PurgeStale removes every sample older than now - maxAge across all assets
// and returns the number of samples removed. maxAge <= 0 uses DefaultMaxAge.
func (c *Cache) PurgeStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := c.now().Add(-maxAge)

	rows, err := c.backend.Scan(ctx, TablePrices)
	if err != nil {
		return 0, fmt.Errorf("%w: scan prices: %w", ErrStorageUnavailable, err)
	}

	removed := 0
	for _, id := range sortedKeys(rows) {
		n, err := c.purgeAsset(ctx, id, cutoff)
		if err != nil {
			return removed, err
		}
		removed += n
	}

	if removed > 0 {
		c.logger.Info("purged stale prices", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// purgeAsset drops samples before cutoff for one asset under its lock.
func (c *Cache) purgeAsset(ctx context.Context, assetID string, cutoff time.Time) (int, error) {
	unlock := c.locks.Lock(assetID)
	defer unlock()

	rec, ok, err := c.readPriceRecord(ctx, assetID)
	if err != nil || !ok {
		return 0, err
	}

	kept := rec.Samples[:0]
	for _, s := range rec.Samples {
		if !s.Timestamp.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	removed := len(rec.Samples) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	if len(kept) == 0 {
		if err := c.backend.Delete(ctx, TablePrices, assetID); err != nil {
			metrics.CacheWriteFailed("purge_stale")
			return 0, fmt.Errorf("%w: delete price %s: %w", ErrStorageWriteFailed, assetID, err)
		}
		return removed, nil
	}

	rec.Samples = kept
	if err := c.writePriceRecord(ctx, "purge_stale", rec); err != nil {
		return 0, err
	}
	return removed, nil
}

// SaveUserAsset upserts a user-added asset.
func (c *Cache) SaveUserAsset(ctx context.Context, asset model.AssetRecord) error {
	if err := c.ready(); err != nil {
		return err
	}
	if asset.ID == "" {
		return fmt.Errorf("%w: asset id is empty", ErrStorageWriteFailed)
	}

	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("%w: encode asset %s: %w", ErrStorageWriteFailed, asset.ID, err)
	}
	if err := c.backend.Put(ctx, TableCustomAssets, asset.ID, data); err != nil {
		metrics.CacheWriteFailed("save_user_asset")
		return fmt.Errorf("%w: save asset %s: %w", ErrStorageWriteFailed, asset.ID, err)
	}
	return nil
}

// ReadAllUserAssets returns every user-added asset ordered by rank then id.
func (c *Cache) ReadAllUserAssets(ctx context.Context) ([]model.AssetRecord, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	rows, err := c.backend.Scan(ctx, TableCustomAssets)
	if err != nil {
		return nil, fmt.Errorf("%w: scan assets: %w", ErrStorageUnavailable, err)
	}

	out := make([]model.AssetRecord, 0, len(rows))
	for id, data := range rows {
		var a model.AssetRecord
		if err := json.Unmarshal(data, &a); err != nil {
			c.logger.Warn("skipping corrupt asset record", "asset", id, "error", err)
			continue
		}
		a.ID = id
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteUserAsset removes a user-added asset.
func (c *Cache) DeleteUserAsset(ctx context.Context, assetID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, TableCustomAssets, assetID); err != nil {
		metrics.CacheWriteFailed("delete_user_asset")
		return fmt.Errorf("%w: delete asset %s: %w", ErrStorageWriteFailed, assetID, err)
	}
	return nil
}

// HideAsset marks a catalog asset as hidden.
func (c *Cache) HideAsset(ctx context.Context, assetID string) error {
	if err := c.ready(); err != nil {
		return err
	}

	data, _ := json.Marshal(hiddenRecord{AssetID: assetID, HiddenAt: c.now()})
	if err := c.backend.Put(ctx, TableHiddenAssets, assetID, data); err != nil {
		metrics.CacheWriteFailed("hide_asset")
		return fmt.Errorf("%w: hide asset %s: %w", ErrStorageWriteFailed, assetID, err)
	}
	return nil
}

// UnhideAsset clears the hidden mark of a catalog asset.
func (c *Cache) UnhideAsset(ctx context.Context, assetID string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, TableHiddenAssets, assetID); err != nil {
		metrics.CacheWriteFailed("unhide_asset")
		return fmt.Errorf("%w: unhide asset %s: %w", ErrStorageWriteFailed, assetID, err)
	}
	return nil
}

// ReadHiddenAssets returns the sorted hidden asset identifiers.
func (c *Cache) ReadHiddenAssets(ctx context.Context) ([]string, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	rows, err := c.backend.Scan(ctx, TableHiddenAssets)
	if err != nil {
		return nil, fmt.Errorf("%w: scan hidden assets: %w", ErrStorageUnavailable, err)
	}
	return sortedKeys(rows), nil
}

// readPriceRecord loads and decodes the record for assetID. A corrupt record
// is logged and treated as absent so the next write replaces it.
func (c *Cache) readPriceRecord(ctx context.Context, assetID string) (priceRecord, bool, error) {
	data, ok, err := c.backend.Get(ctx, TablePrices, assetID)
	if err != nil {
		return priceRecord{}, false, fmt.Errorf("%w: read price %s: %w", ErrStorageUnavailable, assetID, err)
	}
	if !ok {
		return priceRecord{AssetID: assetID}, false, nil
	}

	var rec priceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("discarding corrupt price record", "asset", assetID, "error", err)
		return priceRecord{AssetID: assetID}, false, nil
	}
	for i := range rec.Samples {
		rec.Samples[i].AssetID = assetID
	}
	return rec, true, nil
}

func (c *Cache) writePriceRecord(ctx context.Context, op string, rec priceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode price %s: %w", ErrStorageWriteFailed, rec.AssetID, err)
	}
	if err := c.backend.Put(ctx, TablePrices, rec.AssetID, data); err != nil {
		metrics.CacheWriteFailed(op)
		return fmt.Errorf("%w: write price %s: %w", ErrStorageWriteFailed, rec.AssetID, err)
	}
	return nil
}

// pruneSamples orders samples by timestamp and keeps the newest window.
func pruneSamples(samples []model.PriceSample, window int) []model.PriceSample {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	if len(samples) > window {
		samples = samples[len(samples)-window:]
	}
	return samples
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
