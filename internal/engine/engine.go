package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/pricesync/internal/cache"
	"github.com/rickgao/pricesync/internal/feed"
	"github.com/rickgao/pricesync/internal/metrics"
	"github.com/rickgao/pricesync/internal/model"
)

// Errors
var (
	ErrDuplicateAsset = errors.New("asset already tracked")
	ErrUnknownAsset   = errors.New("asset not tracked")
	ErrInvalidAsset   = errors.New("invalid asset")
)

// Store is the durable state the engine reads at startup and writes through.
type Store interface {
	Initialize(ctx context.Context) error
	ReadAllPrices(ctx context.Context) ([]model.PriceSample, error)
	DeletePrice(ctx context.Context, assetID string) error
	PurgeStale(ctx context.Context, maxAge time.Duration) (int, error)
	SaveUserAsset(ctx context.Context, asset model.AssetRecord) error
	ReadAllUserAssets(ctx context.Context) ([]model.AssetRecord, error)
	DeleteUserAsset(ctx context.Context, assetID string) error
	HideAsset(ctx context.Context, assetID string) error
	UnhideAsset(ctx context.Context, assetID string) error
	ReadHiddenAssets(ctx context.Context) ([]string, error)
}

// Feed is the streaming price source.
type Feed interface {
	Start(ctx context.Context, assets []string) error
	SetAssets(assets []string)
	Stop()
	Updates() <-chan feed.Batch
	Invalidations() <-chan []string
	Status() feed.Status
}

// Config holds engine configuration.
type Config struct {
	HistoryWindow int           // Samples kept per asset (default: 10)
	StaleAfter    time.Duration // Samples older than this are purged (default: 24h)
	PurgeInterval time.Duration // Purge cadence; zero disables the periodic purge
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryWindow: model.HistoryWindow,
		StaleAfter:    cache.DefaultMaxAge,
		PurgeInterval: time.Hour,
	}
}

// Engine is the synchronization engine.
type Engine struct {
	cfg     Config
	store   Store
	feed    Feed
	logger  *slog.Logger
	now     func() time.Time
	session uuid.UUID

	// Static catalog, never mutated after New.
	catalog map[string]model.AssetRecord

	mu          sync.RWMutex
	user        map[string]model.AssetRecord
	hidden      map[string]bool
	history     map[string][]model.PriceSample
	live        map[string]float64
	baseline    map[string]float64
	invalidated []string
	degraded    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Engine over the static catalog.
func New(cfg Config, catalog []model.AssetRecord, store Store, src Feed, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = model.HistoryWindow
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = cache.DefaultMaxAge
	}

	session := uuid.New()
	e := &Engine{
		cfg:      cfg,
		store:    store,
		feed:     src,
		logger:   logger.With("session", session.String()),
		now:      time.Now,
		session:  session,
		catalog:  make(map[string]model.AssetRecord, len(catalog)),
		user:     make(map[string]model.AssetRecord),
		hidden:   make(map[string]bool),
		history:  make(map[string][]model.PriceSample),
		live:     make(map[string]float64),
		baseline: make(map[string]float64),
	}
	for _, a := range catalog {
		e.catalog[a.ID] = a
	}
	return e
}

// Start initializes storage, loads persisted state and starts the feed
// against the tracked set. Storage failures degrade to in-memory operation.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	if err := e.store.Initialize(ctx); err != nil {
		e.mu.Lock()
		e.degraded = true
		e.mu.Unlock()
		e.logger.Warn("price cache unavailable, running without persistence", "error", err)
	} else {
		e.purge(ctx)
		e.load(ctx)
	}

	tracked := e.trackedIDs()
	metrics.SetTrackedAssets(len(tracked))

	if err := e.feed.Start(e.ctx, tracked); err != nil {
		e.cancel()
		return fmt.Errorf("start feed: %w", err)
	}

	e.wg.Add(1)
	go e.run()

	e.logger.Info("sync engine started",
		"tracked", len(tracked),
		"window", e.cfg.HistoryWindow,
	)
	return nil
}

// Stop shuts down the feed and the engine loop.
func (e *Engine) Stop(ctx context.Context) error {
	e.feed.Stop()
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("sync engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionID identifies this running session.
func (e *Engine) SessionID() uuid.UUID {
	return e.session
}

// load reads user assets, hidden identifiers and cached samples.
func (e *Engine) load(ctx context.Context) {
	var (
		users   []model.AssetRecord
		hidden  []string
		samples []model.PriceSample
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		if users, err = e.store.ReadAllUserAssets(ctx); err != nil {
			return fmt.Errorf("load user assets: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if hidden, err = e.store.ReadHiddenAssets(ctx); err != nil {
			return fmt.Errorf("load hidden assets: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if samples, err = e.store.ReadAllPrices(ctx); err != nil {
			return fmt.Errorf("load prices: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		e.logger.Warn("partial state load", "error", err)
	}

	grouped := make(map[string][]model.PriceSample)
	for _, s := range samples {
		grouped[s.AssetID] = append(grouped[s.AssetID], s)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, a := range users {
		if _, ok := e.catalog[a.ID]; ok {
			e.logger.Warn("ignoring user asset shadowing catalog entry", "asset", a.ID)
			continue
		}
		e.user[a.ID] = a
	}
	for _, id := range hidden {
		e.hidden[id] = true
	}
	for id, list := range grouped {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Timestamp.Before(list[j].Timestamp)
		})
		e.history[id] = truncate(collapseRepeats(list), e.cfg.HistoryWindow)
	}

	e.logger.Info("loaded persisted state",
		"user_assets", len(users),
		"hidden", len(hidden),
		"samples", len(samples),
	)
}

// run consumes feed output until the engine stops.
func (e *Engine) run() {
	defer e.wg.Done()

	var purge <-chan time.Time
	if e.cfg.PurgeInterval > 0 {
		ticker := time.NewTicker(e.cfg.PurgeInterval)
		defer ticker.Stop()
		purge = ticker.C
	}

	for {
		select {
		case <-e.ctx.Done():
			return
		case batch := <-e.feed.Updates():
			e.Apply(batch)
		case ids := <-e.feed.Invalidations():
			e.Invalidate(e.ctx, ids...)
		case <-purge:
			e.purge(e.ctx)
		}
	}
}

func (e *Engine) purge(ctx context.Context) {
	removed, err := e.store.PurgeStale(ctx, e.cfg.StaleAfter)
	if err != nil {
		e.storeFailed("purge stale prices", "", err)
		return
	}
	if removed > 0 {
		e.logger.Debug("purged stale samples", "removed", removed)
	}
}

// Apply merges a batch of valid updates into the rolling history.
// Updates for untracked identifiers are ignored.
func (e *Engine) Apply(batch feed.Batch) {
	now := e.now()
	applied := 0

	e.mu.Lock()
	for _, u := range batch.Updates {
		if !e.trackedLocked(u.AssetID) {
			continue
		}
		applied++

		e.live[u.AssetID] = u.Price
		if _, ok := e.baseline[u.AssetID]; !ok {
			e.baseline[u.AssetID] = u.Price
		}
		e.appendLocked(u.AssetID, u.Price, now)
	}
	e.mu.Unlock()

	if applied > 0 {
		metrics.PriceUpdated(applied)
	}
}

// appendLocked appends a sample unless the price equals the last one.
func (e *Engine) appendLocked(id string, price float64, now time.Time) {
	hist := e.history[id]
	if n := len(hist); n > 0 {
		last := hist[n-1]
		if last.Price == price {
			return
		}
		// Keep timestamps ascending if the clock steps back.
		if now.Before(last.Timestamp) {
			now = last.Timestamp
		}
	}
	hist = append(hist, model.PriceSample{AssetID: id, Price: price, Timestamp: now})
	e.history[id] = truncate(hist, e.cfg.HistoryWindow)
}

// Invalidate evicts assets from the cache, the tracked set and the in-memory
// history. Catalog assets are hidden; user assets are deleted.
func (e *Engine) Invalidate(ctx context.Context, ids ...string) {
	var (
		evicted []string
		hide    []bool
	)

	e.mu.Lock()
	for _, id := range ids {
		if !e.trackedLocked(id) {
			continue
		}
		hide = append(hide, e.evictLocked(id))
		if !slices.Contains(e.invalidated, id) {
			e.invalidated = append(e.invalidated, id)
		}
		evicted = append(evicted, id)
	}
	tracked := e.trackedIDsLocked()
	e.mu.Unlock()

	if len(evicted) == 0 {
		return
	}

	for i, id := range evicted {
		e.persistEviction(ctx, id, hide[i])
	}

	e.logger.Warn("assets invalidated", "assets", evicted)
	e.retrack(tracked)
}

// RemoveAsset untracks an asset at the user's request.
func (e *Engine) RemoveAsset(ctx context.Context, id string) error {
	e.mu.Lock()
	if !e.trackedLocked(id) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	hide := e.evictLocked(id)
	tracked := e.trackedIDsLocked()
	e.mu.Unlock()

	e.persistEviction(ctx, id, hide)

	e.logger.Info("asset removed", "asset", id)
	e.retrack(tracked)
	return nil
}

// AddAsset tracks a user asset under the next unused rank. Re-adding a
// hidden catalog asset restores it with its catalog rank.
func (e *Engine) AddAsset(ctx context.Context, asset model.AssetRecord) (model.AssetRecord, error) {
	asset.ID = strings.TrimSpace(asset.ID)
	if asset.ID == "" {
		return model.AssetRecord{}, fmt.Errorf("%w: empty identifier", ErrInvalidAsset)
	}

	e.mu.Lock()
	if e.trackedLocked(asset.ID) {
		e.mu.Unlock()
		return model.AssetRecord{}, fmt.Errorf("%w: %s", ErrDuplicateAsset, asset.ID)
	}

	e.invalidated = slices.DeleteFunc(e.invalidated, func(v string) bool { return v == asset.ID })

	if cat, ok := e.catalog[asset.ID]; ok {
		delete(e.hidden, asset.ID)
		tracked := e.trackedIDsLocked()
		e.mu.Unlock()

		if err := e.store.UnhideAsset(ctx, asset.ID); err != nil {
			e.storeFailed("unhide asset", asset.ID, err)
		}
		e.logger.Info("catalog asset restored", "asset", asset.ID)
		e.retrack(tracked)
		return cat, nil
	}

	asset.Rank = e.nextRankLocked()
	e.user[asset.ID] = asset
	tracked := e.trackedIDsLocked()
	e.mu.Unlock()

	if err := e.store.SaveUserAsset(ctx, asset); err != nil {
		e.storeFailed("save user asset", asset.ID, err)
	}

	e.logger.Info("asset added", "asset", asset.ID, "rank", asset.Rank)
	e.retrack(tracked)
	return asset, nil
}

// evictLocked drops all in-memory state for id and moves it out of the
// tracked set. Catalog entries take precedence over user records with the
// same id; it reports whether id was hidden rather than deleted.
func (e *Engine) evictLocked(id string) (hidden bool) {
	if _, ok := e.catalog[id]; ok {
		e.hidden[id] = true
		hidden = true
	}
	delete(e.user, id)
	delete(e.history, id)
	delete(e.live, id)
	delete(e.baseline, id)
	return hidden
}

// persistEviction mirrors evictLocked in the store.
func (e *Engine) persistEviction(ctx context.Context, id string, hide bool) {
	if err := e.store.DeletePrice(ctx, id); err != nil {
		e.storeFailed("delete prices", id, err)
	}

	if hide {
		if err := e.store.HideAsset(ctx, id); err != nil {
			e.storeFailed("hide asset", id, err)
		}
		return
	}
	if err := e.store.DeleteUserAsset(ctx, id); err != nil {
		e.storeFailed("delete user asset", id, err)
	}
}

func (e *Engine) retrack(tracked []string) {
	metrics.SetTrackedAssets(len(tracked))
	e.feed.SetAssets(tracked)
}

// storeFailed logs a non-fatal storage error.
func (e *Engine) storeFailed(op, id string, err error) {
	if errors.Is(err, cache.ErrStorageUnavailable) {
		e.logger.Debug("storage unavailable", "op", op, "asset", id)
		return
	}
	e.logger.Warn("storage operation failed", "op", op, "asset", id, "error", err)
}

// nextRankLocked returns max(existing ranks, 0) + 1 over tracked assets.
func (e *Engine) nextRankLocked() int {
	maxRank := 0
	for _, a := range e.assetsLocked() {
		if a.Rank > maxRank {
			maxRank = a.Rank
		}
	}
	return maxRank + 1
}

// trackedLocked reports whether id is in catalog ∪ user − hidden.
func (e *Engine) trackedLocked(id string) bool {
	if _, ok := e.catalog[id]; ok {
		return !e.hidden[id]
	}
	_, ok := e.user[id]
	return ok
}

// assetsLocked returns the records of all tracked assets.
func (e *Engine) assetsLocked() []model.AssetRecord {
	out := make([]model.AssetRecord, 0, len(e.catalog)+len(e.user))
	for id, a := range e.catalog {
		if e.hidden[id] {
			continue
		}
		out = append(out, a)
	}
	for id, a := range e.user {
		if _, ok := e.catalog[id]; ok {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (e *Engine) trackedIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trackedIDsLocked()
}

func (e *Engine) trackedIDsLocked() []string {
	assets := e.assetsLocked()
	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	return ids
}

// collapseRepeats folds each run of equal consecutive prices in an ascending
// list into its newest sample.
func collapseRepeats(samples []model.PriceSample) []model.PriceSample {
	out := samples[:0]
	for _, s := range samples {
		if n := len(out); n > 0 && out[n-1].Price == s.Price {
			out[n-1] = s
			continue
		}
		out = append(out, s)
	}
	return out
}

// truncate keeps the newest n samples of an ascending list.
func truncate(samples []model.PriceSample, n int) []model.PriceSample {
	if len(samples) <= n {
		return samples
	}
	out := make([]model.PriceSample, n)
	copy(out, samples[len(samples)-n:])
	return out
}
