package engine

import (
	"slices"
	"sort"

	"github.com/rickgao/pricesync/internal/model"
)

// Views returns the derived record for every tracked asset, ordered by rank
// then identifier. Hidden assets are excluded.
func (e *Engine) Views() []model.AssetView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	assets := e.assetsLocked()
	views := make([]model.AssetView, 0, len(assets))
	for _, a := range assets {
		views = append(views, e.viewLocked(a))
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].Rank != views[j].Rank {
			return views[i].Rank < views[j].Rank
		}
		return views[i].ID < views[j].ID
	})
	return views
}

// View returns the derived record for one tracked asset.
func (e *Engine) View(id string) (model.AssetView, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.trackedLocked(id) {
		return model.AssetView{}, false
	}
	if a, ok := e.catalog[id]; ok {
		return e.viewLocked(a), true
	}
	return e.viewLocked(e.user[id]), true
}

// Status returns the global synchronization status.
func (e *Engine) Status() model.SyncStatus {
	fs := e.feed.Status()

	e.mu.RLock()
	defer e.mu.RUnlock()

	return model.SyncStatus{
		SessionID:       e.session,
		ConnectionState: fs.State,
		Connected:       fs.Connected(),
		LastError:       fs.LastError,
		Invalidated:     slices.Clone(e.invalidated),
		Tracked:         len(e.trackedIDsLocked()),
		StorageDegraded: e.degraded,
	}
}

func (e *Engine) viewLocked(a model.AssetRecord) model.AssetView {
	_, inCatalog := e.catalog[a.ID]
	_, inUser := e.user[a.ID]
	custom := inUser && !inCatalog
	hist := slices.Clone(e.history[a.ID])
	price, live := e.currentPriceLocked(a, hist)

	v := model.AssetView{
		ID:            a.ID,
		Name:          a.Name,
		Symbol:        a.Symbol,
		Rank:          a.Rank,
		Supply:        a.Supply,
		MarketCap:     a.MarketCap,
		Volume24h:     a.Volume24h,
		Description:   a.Description,
		CurrentPrice:  price,
		ChangePercent: e.changeLocked(a, hist, price),
		Live:          live,
		Custom:        custom,
		History:       hist,
	}
	if hist == nil {
		v.History = []model.PriceSample{}
	}
	if n := len(hist); n > 0 {
		v.UpdatedAt = hist[n-1].Timestamp
	}
	return v
}

// currentPriceLocked prefers the live price, then the newest cached sample,
// then the catalog price.
func (e *Engine) currentPriceLocked(a model.AssetRecord, hist []model.PriceSample) (float64, bool) {
	if p, ok := e.live[a.ID]; ok {
		return p, true
	}
	if n := len(hist); n > 0 {
		return hist[n-1].Price, false
	}
	return a.Price, false
}

// changeLocked computes percentage change against the session baseline.
// Without a baseline it spans the cached history, and without history it
// falls back to the catalog value.
func (e *Engine) changeLocked(a model.AssetRecord, hist []model.PriceSample, current float64) float64 {
	if base, ok := e.baseline[a.ID]; ok {
		return percentChange(base, current)
	}
	if len(hist) > 0 {
		return percentChange(hist[0].Price, current)
	}
	return a.ChangePercent
}

func percentChange(base, current float64) float64 {
	if base == 0 {
		return 0
	}
	return (current - base) / base * 100
}
