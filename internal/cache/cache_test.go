package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/pricesync/internal/model"
)

// fakeClock returns a settable, monotonically advanced time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingBackend fails Open or writes on demand.
type failingBackend struct {
	*MemoryBackend
	openErr  error
	writeErr error
}

func (f *failingBackend) Open(ctx context.Context) error {
	if f.openErr != nil {
		return f.openErr
	}
	return f.MemoryBackend.Open(ctx)
}

func (f *failingBackend) Put(ctx context.Context, table Table, key string, value []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	return f.MemoryBackend.Put(ctx, table, key, value)
}

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c := New(NewMemoryBackend(), opts...)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c
}

func TestCache_RecordAndReadLatest(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	before := time.Now()
	if err := c.RecordPrice(ctx, "ethereum", 3456.78); err != nil {
		t.Fatalf("RecordPrice() error = %v", err)
	}

	got, ok, err := c.ReadLatestPrice(ctx, "ethereum")
	if err != nil {
		t.Fatalf("ReadLatestPrice() error = %v", err)
	}
	if !ok {
		t.Fatal("ReadLatestPrice() returned absent")
	}
	if got.Price != 3456.78 {
		t.Errorf("Price = %v, want 3456.78", got.Price)
	}
	if got.AssetID != "ethereum" {
		t.Errorf("AssetID = %q, want ethereum", got.AssetID)
	}
	if got.Timestamp.Before(before) {
		t.Errorf("Timestamp %v before call time %v", got.Timestamp, before)
	}
}

func TestCache_ReadLatestAbsent(t *testing.T) {
	c := newTestCache(t)

	_, ok, err := c.ReadLatestPrice(context.Background(), "dogecoin")
	if err != nil {
		t.Fatalf("ReadLatestPrice() error = %v", err)
	}
	if ok {
		t.Error("expected absent sample")
	}
}

func TestCache_RecordPrunesToWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 15; i++ {
		if err := c.RecordPrice(ctx, "bitcoin", float64(i)); err != nil {
			t.Fatalf("RecordPrice(%d) error = %v", i, err)
		}
	}
	if err := c.RecordPrice(ctx, "solana", 150); err != nil {
		t.Fatalf("RecordPrice(solana) error = %v", err)
	}

	all, err := c.ReadAllPrices(ctx)
	if err != nil {
		t.Fatalf("ReadAllPrices() error = %v", err)
	}

	var btc []model.PriceSample
	var sol int
	for _, s := range all {
		switch s.AssetID {
		case "bitcoin":
			btc = append(btc, s)
		case "solana":
			sol++
		}
	}

	if len(btc) != model.HistoryWindow {
		t.Fatalf("bitcoin samples = %d, want %d", len(btc), model.HistoryWindow)
	}
	if btc[0].Price != 6 || btc[len(btc)-1].Price != 15 {
		t.Errorf("bitcoin window = [%v..%v], want [6..15]", btc[0].Price, btc[len(btc)-1].Price)
	}
	for i := 1; i < len(btc); i++ {
		if btc[i].Timestamp.Before(btc[i-1].Timestamp) {
			t.Errorf("samples not ascending at %d", i)
		}
	}
	if sol != 1 {
		t.Errorf("solana samples = %d, want 1", sol)
	}
}

func TestCache_RecordRepeatedPriceRefreshesTimestamp(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()

	if err := c.RecordPrice(ctx, "bitcoin", 100); err != nil {
		t.Fatalf("RecordPrice(100) error = %v", err)
	}
	first, _, _ := c.ReadLatestPrice(ctx, "bitcoin")

	for i := 0; i < model.HistoryWindow+5; i++ {
		clock.Advance(time.Second)
		if err := c.RecordPrice(ctx, "bitcoin", 101); err != nil {
			t.Fatalf("RecordPrice(101) error = %v", err)
		}
	}

	all, err := c.ReadAllPrices(ctx)
	if err != nil {
		t.Fatalf("ReadAllPrices() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("samples = %d, want 2", len(all))
	}
	if all[0].Price != 100 || all[1].Price != 101 {
		t.Errorf("prices = [%v %v], want [100 101]", all[0].Price, all[1].Price)
	}
	if !all[0].Timestamp.Equal(first.Timestamp) {
		t.Errorf("oldest timestamp changed: %v, want %v", all[0].Timestamp, first.Timestamp)
	}
	if want := first.Timestamp.Add(time.Duration(model.HistoryWindow+5) * time.Second); all[1].Timestamp.Before(want) {
		t.Errorf("latest timestamp = %v, want refreshed to at least %v", all[1].Timestamp, want)
	}

	// A different price after the repeats is appended as usual.
	if err := c.RecordPrice(ctx, "bitcoin", 100); err != nil {
		t.Fatalf("RecordPrice(100) error = %v", err)
	}
	all, _ = c.ReadAllPrices(ctx)
	if len(all) != 3 {
		t.Errorf("samples after change = %d, want 3", len(all))
	}
}

func TestCache_DeletePrice(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.RecordPrice(ctx, "bitcoin", 1)
	c.RecordPrice(ctx, "ethereum", 2)

	if err := c.DeletePrice(ctx, "bitcoin"); err != nil {
		t.Fatalf("DeletePrice() error = %v", err)
	}

	if _, ok, _ := c.ReadLatestPrice(ctx, "bitcoin"); ok {
		t.Error("bitcoin still present after delete")
	}
	if _, ok, _ := c.ReadLatestPrice(ctx, "ethereum"); !ok {
		t.Error("ethereum removed by bitcoin delete")
	}
}

func TestCache_PurgeStale(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache(t, WithClock(clock.Now))
	ctx := context.Background()

	c.RecordPrice(ctx, "bitcoin", 1)
	c.RecordPrice(ctx, "bitcoin", 2)
	c.RecordPrice(ctx, "ethereum", 10)

	clock.Advance(25 * time.Hour)
	c.RecordPrice(ctx, "bitcoin", 3)

	removed, err := c.PurgeStale(ctx, 0)
	if err != nil {
		t.Fatalf("PurgeStale() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	latest, ok, _ := c.ReadLatestPrice(ctx, "bitcoin")
	if !ok || latest.Price != 3 {
		t.Errorf("bitcoin latest = %+v (ok=%v), want price 3", latest, ok)
	}
	if _, ok, _ := c.ReadLatestPrice(ctx, "ethereum"); ok {
		t.Error("ethereum should be fully purged")
	}

	all, _ := c.ReadAllPrices(ctx)
	if len(all) != 1 {
		t.Errorf("remaining samples = %d, want 1", len(all))
	}
}

func TestCache_UserAssets(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	assets := []model.AssetRecord{
		{ID: "dogecoin", Name: "Dogecoin", Symbol: "DOGE", Rank: 12},
		{ID: "chainlink", Name: "Chainlink", Symbol: "LINK", Rank: 11},
	}
	for _, a := range assets {
		if err := c.SaveUserAsset(ctx, a); err != nil {
			t.Fatalf("SaveUserAsset(%s) error = %v", a.ID, err)
		}
	}

	// Upsert replaces.
	assets[0].Name = "Doge"
	c.SaveUserAsset(ctx, assets[0])

	got, err := c.ReadAllUserAssets(ctx)
	if err != nil {
		t.Fatalf("ReadAllUserAssets() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "chainlink" || got[1].ID != "dogecoin" {
		t.Errorf("order = [%s %s], want [chainlink dogecoin]", got[0].ID, got[1].ID)
	}
	if got[1].Name != "Doge" {
		t.Errorf("Name = %q, want Doge", got[1].Name)
	}

	if err := c.DeleteUserAsset(ctx, "dogecoin"); err != nil {
		t.Fatalf("DeleteUserAsset() error = %v", err)
	}
	got, _ = c.ReadAllUserAssets(ctx)
	if len(got) != 1 || got[0].ID != "chainlink" {
		t.Errorf("after delete = %+v, want only chainlink", got)
	}
}

func TestCache_SaveUserAssetEmptyID(t *testing.T) {
	c := newTestCache(t)

	err := c.SaveUserAsset(context.Background(), model.AssetRecord{Name: "nameless"})
	if !errors.Is(err, ErrStorageWriteFailed) {
		t.Errorf("error = %v, want ErrStorageWriteFailed", err)
	}
}

func TestCache_HiddenAssets(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.HideAsset(ctx, "tether")
	c.HideAsset(ctx, "cardano")

	got, err := c.ReadHiddenAssets(ctx)
	if err != nil {
		t.Fatalf("ReadHiddenAssets() error = %v", err)
	}
	if fmt.Sprint(got) != "[cardano tether]" {
		t.Errorf("hidden = %v, want [cardano tether]", got)
	}

	c.UnhideAsset(ctx, "tether")
	got, _ = c.ReadHiddenAssets(ctx)
	if fmt.Sprint(got) != "[cardano]" {
		t.Errorf("hidden = %v, want [cardano]", got)
	}
}

func TestCache_Unavailable(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), openErr: errors.New("no disk")}
	c := New(backend)
	ctx := context.Background()

	if err := c.Initialize(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Initialize() error = %v, want ErrStorageUnavailable", err)
	}

	checks := map[string]error{
		"RecordPrice":     c.RecordPrice(ctx, "bitcoin", 1),
		"DeletePrice":     c.DeletePrice(ctx, "bitcoin"),
		"SaveUserAsset":   c.SaveUserAsset(ctx, model.AssetRecord{ID: "x"}),
		"DeleteUserAsset": c.DeleteUserAsset(ctx, "x"),
		"HideAsset":       c.HideAsset(ctx, "x"),
	}
	_, _, err := c.ReadLatestPrice(ctx, "bitcoin")
	checks["ReadLatestPrice"] = err
	_, err = c.ReadAllPrices(ctx)
	checks["ReadAllPrices"] = err
	_, err = c.PurgeStale(ctx, time.Hour)
	checks["PurgeStale"] = err
	_, err = c.ReadAllUserAssets(ctx)
	checks["ReadAllUserAssets"] = err

	for op, err := range checks {
		if !errors.Is(err, ErrStorageUnavailable) {
			t.Errorf("%s error = %v, want ErrStorageUnavailable", op, err)
		}
	}

	// Storage recovers on a later Initialize.
	backend.openErr = nil
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if err := c.RecordPrice(ctx, "bitcoin", 1); err != nil {
		t.Errorf("RecordPrice after recovery error = %v", err)
	}
}

func TestCache_NotInitialized(t *testing.T) {
	c := New(NewMemoryBackend())

	err := c.RecordPrice(context.Background(), "bitcoin", 1)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

func TestCache_InitializeIdempotent(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.RecordPrice(ctx, "bitcoin", 42)
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if _, ok, _ := c.ReadLatestPrice(ctx, "bitcoin"); !ok {
		t.Error("re-initialize lost data")
	}
}

func TestCache_WriteFailure(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), writeErr: errors.New("disk full")}
	c := New(backend)
	ctx := context.Background()
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if err := c.RecordPrice(ctx, "bitcoin", 1); !errors.Is(err, ErrStorageWriteFailed) {
		t.Errorf("RecordPrice error = %v, want ErrStorageWriteFailed", err)
	}
	if err := c.SaveUserAsset(ctx, model.AssetRecord{ID: "x"}); !errors.Is(err, ErrStorageWriteFailed) {
		t.Errorf("SaveUserAsset error = %v, want ErrStorageWriteFailed", err)
	}
}

func TestCache_ConcurrentRecordSameAsset(t *testing.T) {
	c := newTestCache(t, WithWindow(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordPrice(ctx, "bitcoin", float64(i))
		}(i)
	}
	wg.Wait()

	all, _ := c.ReadAllPrices(ctx)
	if len(all) != 50 {
		t.Errorf("samples = %d, want 50 (lost updates)", len(all))
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: "postgres", want: "*cache.PostgresBackend"},
		{driver: "redis", want: "*cache.RedisBackend"},
		{driver: "memory", want: "*cache.MemoryBackend"},
		{driver: "sqlite", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfgDriver := tt.driver
			b, err := NewBackend(storageConfig(cfgDriver), nil)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if got := fmt.Sprintf("%T", b); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}
