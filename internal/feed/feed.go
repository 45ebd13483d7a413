package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/pricesync/internal/metrics"
	"github.com/rickgao/pricesync/internal/model"
)

// Recorder receives every valid price as a best-effort side effect.
type Recorder interface {
	RecordPrice(ctx context.Context, assetID string, price float64) error
}

// ClientFactory creates the WebSocket client for one connection attempt.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// Option configures a Feed.
type Option func(*Feed)

// WithRecorder sets the recorder that receives valid prices.
func WithRecorder(r Recorder) Option {
	return func(f *Feed) {
		f.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) {
		f.logger = logger
	}
}

// WithClientFactory replaces the WebSocket client constructor.
func WithClientFactory(fn ClientFactory) Option {
	return func(f *Feed) {
		f.newClient = fn
	}
}

// Feed maintains one streaming subscription for a dynamic asset list.
type Feed struct {
	cfg       Config
	recorder  Recorder
	logger    *slog.Logger
	newClient ClientFactory

	// Output channels
	updates chan Batch
	invalid chan []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	started     bool
	stopped     bool
	assets      []string
	client      Client
	gen         uint64 // bumped whenever the current client is detached
	timer       *time.Timer
	timerSeq    uint64 // bumped whenever the pending timer is replaced or canceled
	state       model.ConnectionState
	lastErr     string
	attempts    int
	connectedAt time.Time

	// Consecutive invalid values per asset, and assets already reported.
	tally       map[string]int
	reported    map[string]bool
	invalidList []string
}

// New creates a Feed. Call Start to connect.
func New(cfg Config, opts ...Option) *Feed {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultConfig().ReconnectDelay
	}

	f := &Feed{
		cfg:       cfg,
		logger:    slog.Default(),
		newClient: NewClient,
		updates:   make(chan Batch, cfg.BufferSize),
		invalid:   make(chan []string, 16),
		state:     model.StateDisconnected,
		tally:     make(map[string]int),
		reported:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start connects to the feed for assets. Connection failures are reported
// through Status and retried; Start only fails when called twice.
func (f *Feed) Start(ctx context.Context, assets []string) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("feed already started")
	}
	f.started = true
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.assets = normalizeList(assets)
	seq := f.timerSeq
	f.mu.Unlock()

	f.logger.Info("price feed starting", "assets", len(assets), "reconnect_delay", f.cfg.ReconnectDelay)

	go f.connect(seq)
	return nil
}

// Stop cancels any pending reconnect and closes the open connection. No
// connection attempt happens after Stop returns.
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.cancelTimerLocked()
	old := f.detachLocked()
	f.setStateLocked(model.StateDisconnected)
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}
	f.wg.Wait()

	f.logger.Info("price feed stopped")
}

// SetAssets replaces the subscribed asset list. A changed list tears down
// the connection and reconnects after the reconnect delay.
func (f *Feed) SetAssets(assets []string) {
	next := normalizeList(assets)

	f.mu.Lock()
	if slices.Equal(next, f.assets) || f.stopped {
		f.mu.Unlock()
		return
	}

	// Forget tallies of assets leaving the subscription.
	keep := make(map[string]bool, len(next))
	for _, id := range next {
		keep[id] = true
	}
	for id := range f.tally {
		if !keep[id] {
			delete(f.tally, id)
		}
	}
	for id := range f.reported {
		if !keep[id] {
			delete(f.reported, id)
		}
	}

	f.assets = next

	if !f.started {
		f.mu.Unlock()
		return
	}

	old := f.detachLocked()
	f.setStateLocked(model.StateDisconnected)
	f.scheduleReconnectLocked()
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}

	f.logger.Info("price feed resubscribing", "assets", len(next), "delay", f.cfg.ReconnectDelay)
}

// Updates returns the channel of valid price batches.
func (f *Feed) Updates() <-chan Batch {
	return f.updates
}

// Invalidations returns the channel of newly invalid asset identifiers.
func (f *Feed) Invalidations() <-chan []string {
	return f.invalid
}

// Status returns a snapshot of the connection state.
func (f *Feed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()

	return Status{
		State:       f.state,
		LastError:   f.lastErr,
		Invalid:     slices.Clone(f.invalidList),
		Assets:      slices.Clone(f.assets),
		Attempts:    f.attempts,
		ConnectedAt: f.connectedAt,
	}
}

// connect opens a new connection if seq still names the current attempt.
func (f *Feed) connect(seq uint64) {
	f.mu.Lock()
	if f.stopped || seq != f.timerSeq {
		f.mu.Unlock()
		return
	}
	f.cancelTimerLocked()
	old := f.detachLocked()

	if len(f.assets) == 0 {
		f.setStateLocked(model.StateDisconnected)
		f.mu.Unlock()
		if old != nil {
			old.Close()
		}
		f.logger.Info("no assets tracked, feed idle")
		return
	}

	gen := f.gen
	f.attempts++
	f.setStateLocked(model.StateConnecting)
	client := f.newClient(ClientConfig{
		URL:              f.subscriptionURL(f.assets),
		HandshakeTimeout: f.cfg.HandshakeTimeout,
		PingTimeout:      f.cfg.PingTimeout,
		WriteTimeout:     f.cfg.WriteTimeout,
		BufferSize:       f.cfg.BufferSize,
	}, f.logger.With("attempt", f.attempts))
	f.client = client
	assets := len(f.assets)
	ctx := f.ctx
	f.mu.Unlock()

	if old != nil {
		old.Close()
	}
	metrics.ConnectAttempt()

	err := client.Connect(ctx)

	f.mu.Lock()
	if f.stopped || gen != f.gen {
		// Torn down while dialing.
		f.mu.Unlock()
		client.Close()
		return
	}

	if err != nil {
		f.client = nil
		f.lastErr = fmt.Errorf("%w: %w", ErrFeedConnection, err).Error()
		f.setStateLocked(model.StateDisconnected)
		f.scheduleReconnectLocked()
		f.mu.Unlock()

		client.Close()
		f.logger.Warn("price feed connect failed", "error", err, "retry_in", f.cfg.ReconnectDelay)
		return
	}

	f.lastErr = ""
	f.connectedAt = time.Now()
	f.setStateLocked(model.StateConnected)
	f.wg.Add(1)
	go f.pump(client, gen)
	f.mu.Unlock()

	f.logger.Info("price feed connected", "assets", assets)
}

// pump handles frames from one client strictly in arrival order.
func (f *Feed) pump(client Client, gen uint64) {
	defer f.wg.Done()

	for {
		select {
		case <-client.Done():
			return
		case msg := <-client.Messages():
			f.handleMessage(msg)
		case err := <-client.Errors():
			f.drain(client)
			f.connectionLost(client, gen, err)
			return
		}
	}
}

// drain handles frames already buffered before the connection failed.
func (f *Feed) drain(client Client) {
	for {
		select {
		case msg := <-client.Messages():
			f.handleMessage(msg)
		default:
			return
		}
	}
}

// connectionLost moves to Disconnected and schedules the reconnect.
func (f *Feed) connectionLost(client Client, gen uint64, err error) {
	f.mu.Lock()
	if f.stopped || gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.gen++
	f.client = nil
	f.connectedAt = time.Time{}
	f.lastErr = fmt.Errorf("%w: %w", ErrFeedConnection, err).Error()
	f.setStateLocked(model.StateDisconnected)
	f.scheduleReconnectLocked()
	f.mu.Unlock()

	client.Close()
	f.logger.Warn("price feed disconnected", "error", err, "retry_in", f.cfg.ReconnectDelay)
}

// handleMessage decodes one frame, updates invalid tallies, records valid
// prices and delivers the batch and any newly invalid assets.
func (f *Feed) handleMessage(msg TimestampedMessage) {
	metrics.MessageReceived()

	values, err := decodeFrame(msg.Data)
	if err != nil {
		metrics.ParseError()
		f.logger.Warn("dropping malformed frame", "error", err, "len", len(msg.Data))
		return
	}

	vendorIDs := make([]string, 0, len(values))
	for id := range values {
		vendorIDs = append(vendorIDs, id)
	}
	sort.Strings(vendorIDs)

	batch := Batch{ReceivedAt: msg.ReceivedAt}
	var newlyInvalid []string

	f.mu.Lock()
	for _, vendorID := range vendorIDs {
		id := Normalize(vendorID)

		raw, ok := rawPrice(values[vendorID])
		if !ok {
			f.tally[id]++
			if f.tally[id] >= InvalidThreshold && !f.reported[id] {
				f.reported[id] = true
				if !slices.Contains(f.invalidList, id) {
					f.invalidList = append(f.invalidList, id)
				}
				newlyInvalid = append(newlyInvalid, id)
			}
			continue
		}

		delete(f.tally, id)

		price, err := parsePrice(raw)
		if err != nil {
			f.logger.Debug("skipping unparsable price", "asset", id, "value", raw, "error", err)
			continue
		}
		batch.Updates = append(batch.Updates, Update{AssetID: id, Price: price})
	}
	ctx := f.ctx
	f.mu.Unlock()

	if f.recorder != nil {
		for _, u := range batch.Updates {
			if err := f.recorder.RecordPrice(ctx, u.AssetID, u.Price); err != nil {
				f.logger.Debug("cache record failed", "asset", u.AssetID, "error", err)
			}
		}
	}

	if len(batch.Updates) > 0 {
		select {
		case f.updates <- batch:
		case <-ctx.Done():
			return
		}
	}

	if len(newlyInvalid) > 0 {
		metrics.Invalidated(len(newlyInvalid))
		f.logger.Warn("assets reported invalid", "assets", newlyInvalid)
		select {
		case f.invalid <- newlyInvalid:
		case <-ctx.Done():
		}
	}
}

// detachLocked drops the current client and returns it for closing.
func (f *Feed) detachLocked() Client {
	old := f.client
	f.client = nil
	f.gen++
	f.connectedAt = time.Time{}
	return old
}

// scheduleReconnectLocked replaces any pending timer with one that fires
// after the reconnect delay.
func (f *Feed) scheduleReconnectLocked() {
	f.cancelTimerLocked()
	seq := f.timerSeq
	f.timer = time.AfterFunc(f.cfg.ReconnectDelay, func() {
		f.connect(seq)
	})
}

// cancelTimerLocked stops the pending timer and invalidates its callback.
func (f *Feed) cancelTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.timerSeq++
}

func (f *Feed) setStateLocked(state model.ConnectionState) {
	f.state = state
	metrics.SetConnectionState(string(state))
}

// subscriptionURL builds the stream URL for assets.
func (f *Feed) subscriptionURL(assets []string) string {
	vendor := make([]string, len(assets))
	for i, id := range assets {
		vendor[i] = VendorID(id)
	}

	u, err := url.Parse(f.cfg.URL)
	if err != nil {
		// Validated by config; fall back to plain concatenation.
		return f.cfg.URL + "?assets=" + strings.Join(vendor, ",")
	}
	q := u.Query()
	q.Set("assets", strings.Join(vendor, ","))
	if f.cfg.APIKey != "" {
		q.Set("apiKey", f.cfg.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// normalizeList returns the sorted, de-duplicated internal identifiers.
func normalizeList(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = Normalize(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
