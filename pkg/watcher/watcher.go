package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	DefaultChainInterval   = 4 * time.Second
	DefaultContentInterval = 4 * time.Second
)

// ErrStopped is returned by a refresh whose result was discarded because the watcher stopped.
var ErrStopped = errors.New("watcher stopped")

// Config controls the poll cadence of a Watcher.
type Config struct {
	ChainInterval   time.Duration
	ContentInterval time.Duration
	// MediaBase resolves relative challenge media references.
	MediaBase string
}

func (c Config) withDefaults() Config {
	if c.ChainInterval <= 0 {
		c.ChainInterval = DefaultChainInterval
	}
	if c.ContentInterval <= 0 {
		c.ContentInterval = DefaultContentInterval
	}
	return c
}

// Watcher owns the state of one (arena, caller) session. It polls the ledger and the content
// store on independent tickers and publishes a merged view after every successful pass.
//
// At most one chain fetch runs at a time; a tick that finds one in flight is skipped. After
// Stop, results of passes still in flight are discarded.
type Watcher struct {
	id        uint64
	caller    string
	fetcher   *Fetcher
	store     content.Store
	publisher Publisher
	overlay   *arena.Overlay
	clock     clockwork.Clock
	logger    *zap.Logger
	cfg       Config

	fetchMu   sync.Mutex
	contentMu sync.Mutex

	mu        sync.RWMutex
	round     *arena.Round
	entries   []arena.Entry
	challenge *arena.Challenge
	view      *arena.View
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New builds a watcher. store and publisher may be nil.
func New(id uint64, caller string, fetcher *Fetcher, store content.Store, publisher Publisher,
	overlay *arena.Overlay, clock clockwork.Clock, logger *zap.Logger, cfg Config) *Watcher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if overlay == nil {
		overlay = arena.NewOverlay()
	}
	return &Watcher{
		id:        id,
		caller:    caller,
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		overlay:   overlay,
		clock:     clock,
		logger:    logger.With(zap.Uint64("arenaId", id), zap.String("caller", caller)),
		cfg:       cfg.withDefaults(),
	}
}

func (w *Watcher) ID() uint64              { return w.id }
func (w *Watcher) Caller() string          { return w.caller }
func (w *Watcher) Overlay() *arena.Overlay { return w.overlay }

// Start launches the chain and content loops. Calling Start on a stopped watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(2)
	go w.loop(ctx, w.cfg.ChainInterval, w.chainTick)
	go w.loop(ctx, w.cfg.ContentInterval, w.contentTick)
	w.logger.Debug("watcher started")
}

// Stop cancels both loops and waits for them to exit. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.logger.Debug("watcher stopped")
}

// Stopped reports whether Stop was called.
func (w *Watcher) Stopped() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stopped
}

func (w *Watcher) loop(ctx context.Context, every time.Duration, tick func(context.Context)) {
	defer w.wg.Done()
	tick(ctx)

	ticker := w.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tick(ctx)
		}
	}
}

func (w *Watcher) chainTick(ctx context.Context) {
	if !w.fetchMu.TryLock() {
		w.logger.Debug("chain fetch still in flight, skipping tick")
		return
	}
	defer w.fetchMu.Unlock()
	_ = w.chainPass(ctx)
}

func (w *Watcher) contentTick(ctx context.Context) {
	if !w.contentMu.TryLock() {
		return
	}
	defer w.contentMu.Unlock()
	w.contentPass(ctx)
}

// Refresh runs a chain pass out of band, waiting for any pass already in flight.
func (w *Watcher) Refresh(ctx context.Context) error {
	w.fetchMu.Lock()
	defer w.fetchMu.Unlock()
	return w.chainPass(ctx)
}

// RefreshContent runs a content pass out of band.
func (w *Watcher) RefreshContent(ctx context.Context) {
	w.contentMu.Lock()
	defer w.contentMu.Unlock()
	w.contentPass(ctx)
}

// chainPass must be called with fetchMu held.
func (w *Watcher) chainPass(ctx context.Context) error {
	w.mu.RLock()
	prev := w.round
	w.mu.RUnlock()

	round, err := w.fetcher.Fetch(ctx, w.id, w.caller, prev)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("arena fetch failed, keeping previous view", zap.Error(err))
		}
		return err
	}

	if prev != nil {
		w.checkRegression(prev, round)
	}
	w.overlay.Observe(round.Snapshot.Status)

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.round = round
	view := w.buildLocked()
	w.mu.Unlock()

	w.publish(ctx, view)
	return nil
}

// contentPass must be called with contentMu held. Failures leave the previous content in place.
func (w *Watcher) contentPass(ctx context.Context) {
	if w.store == nil {
		return
	}

	entries, err := w.store.Entries(ctx, w.id)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("content fetch failed", zap.Error(err))
		}
		entries = nil
	}

	w.mu.RLock()
	needChallenge := w.challenge == nil
	w.mu.RUnlock()

	var challenge *arena.Challenge
	if needChallenge {
		challenge, err = w.store.Challenge(ctx, w.id)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("challenge fetch failed", zap.Error(err))
		}
		if challenge != nil {
			challenge.MediaURL = content.ResolveMediaURL(w.cfg.MediaBase, challenge.MediaURL)
		}
	}

	if entries == nil && challenge == nil {
		return
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if entries != nil {
		w.entries = entries
	}
	if challenge != nil {
		w.challenge = challenge
	}
	view := w.buildLocked()
	w.mu.Unlock()

	w.publish(ctx, view)
}

// Republish rebuilds the view from the current state, e.g. after the overlay changed.
func (w *Watcher) Republish(ctx context.Context) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	view := w.buildLocked()
	w.mu.Unlock()
	w.publish(ctx, view)
}

// buildLocked derives a fresh view from one clock sample. Returns nil until a round exists.
func (w *Watcher) buildLocked() *arena.View {
	if w.round == nil {
		return nil
	}
	v := arena.BuildView(arena.ViewInput{
		Round:     w.round,
		Content:   w.entries,
		Challenge: w.challenge,
		Overlay:   w.overlay.State(),
		Now:       w.clock.Now(),
	})
	w.view = &v
	return &v
}

func (w *Watcher) publish(ctx context.Context, view *arena.View) {
	if view == nil || w.publisher == nil {
		return
	}
	w.publisher.Publish(ctx, view)
}

// View returns the last view built, or nil before the first successful chain pass.
func (w *Watcher) View() *arena.View {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.view == nil {
		return nil
	}
	v := *w.view
	return &v
}

// Round returns the last successful ledger round.
func (w *Watcher) Round() *arena.Round {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.round
}

func (w *Watcher) checkRegression(prev, next *arena.Round) {
	for addr, before := range prev.VoteCounts {
		after, ok := next.VoteCounts[addr]
		if ok && after < before {
			w.logger.Warn("vote count regression",
				zap.String("participant", addr),
				zap.Uint64("previous", before),
				zap.Uint64("current", after))
		}
	}
}
