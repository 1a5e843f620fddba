package watcher

import (
	"context"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

type lease struct {
	w    *Watcher
	refs int
}

// OverlayRetention bounds how long a locally settled overlay outlives its watcher while the
// ledger has not yet reported the terminal status.
const OverlayRetention = 10 * time.Minute

// Registry tracks running watchers by session. A watcher runs while at least one holder
// (websocket client, in-flight action) has it acquired. An overlay lives as long as its
// session, except that an unconfirmed local settlement is kept for OverlayRetention so the
// settle action stays hidden across reconnects.
type Registry struct {
	ctx       context.Context
	fetcher   *Fetcher
	store     content.Store
	publisher Publisher
	clock     clockwork.Clock
	logger    *zap.Logger
	cfg       Config

	leases   *xsync.Map[string, *lease]
	overlays *xsync.Map[string, *arena.Overlay]
	expiries *xsync.Map[string, time.Time]
}

// NewRegistry returns a registry whose watchers run until ctx is cancelled.
func NewRegistry(ctx context.Context, fetcher *Fetcher, store content.Store, publisher Publisher,
	clock clockwork.Clock, logger *zap.Logger, cfg Config) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		ctx:       ctx,
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		cfg:       cfg,
		leases:    xsync.NewMap[string, *lease](),
		overlays:  xsync.NewMap[string, *arena.Overlay](),
		expiries:  xsync.NewMap[string, time.Time](),
	}
}

// Overlay returns the optimistic state of a session, creating it on first use.
func (r *Registry) Overlay(arenaID uint64, caller string) *arena.Overlay {
	key := SessionKey(arenaID, caller)
	o, _ := r.overlays.Compute(key, func(old *arena.Overlay, loaded bool) (*arena.Overlay, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		return arena.NewOverlay(), xsync.UpdateOp
	})
	r.expiries.Delete(key)
	return o
}

// Overlays is the number of session overlays held in memory.
func (r *Registry) Overlays() int {
	return r.overlays.Size()
}

// retire drops the overlay of a session nobody holds any more. An idle overlay is removed at
// once; a local settlement the ledger has not confirmed is kept until OverlayRetention passes.
// Expired overlays of other sessions are pruned on the way.
func (r *Registry) retire(arenaID uint64, caller string) {
	key := SessionKey(arenaID, caller)
	now := r.clock.Now()
	r.leases.Compute(key, func(old *lease, loaded bool) (*lease, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		r.overlays.Compute(key, func(o *arena.Overlay, found bool) (*arena.Overlay, xsync.ComputeOp) {
			switch {
			case !found:
				return o, xsync.CancelOp
			case o.Busy():
				return o, xsync.CancelOp
			case o.Settled() && !o.Confirmed():
				r.expiries.Store(key, now.Add(OverlayRetention))
				return o, xsync.CancelOp
			}
			r.expiries.Delete(key)
			return o, xsync.DeleteOp
		})
		return old, xsync.CancelOp
	})
	r.prune(now)
}

func (r *Registry) prune(now time.Time) {
	r.expiries.Range(func(key string, at time.Time) bool {
		if now.Before(at) {
			return true
		}
		r.leases.Compute(key, func(old *lease, loaded bool) (*lease, xsync.ComputeOp) {
			if !loaded {
				r.overlays.Delete(key)
				r.expiries.Delete(key)
			}
			return old, xsync.CancelOp
		})
		return true
	})
}

func (r *Registry) newWatcher(arenaID uint64, caller string) *Watcher {
	return New(arenaID, caller, r.fetcher, r.store, r.publisher, r.Overlay(arenaID, caller), r.clock, r.logger, r.cfg)
}

// Acquire returns the running watcher of a session, starting one if needed. Every Acquire must
// be paired with a Release.
func (r *Registry) Acquire(arenaID uint64, caller string) *Watcher {
	var created bool
	l, _ := r.leases.Compute(SessionKey(arenaID, caller), func(old *lease, loaded bool) (*lease, xsync.ComputeOp) {
		if loaded {
			return &lease{w: old.w, refs: old.refs + 1}, xsync.UpdateOp
		}
		created = true
		return &lease{w: r.newWatcher(arenaID, caller), refs: 1}, xsync.UpdateOp
	})
	if created {
		l.w.Start(r.ctx)
		r.logger.Debug("watcher acquired", zap.Uint64("arenaId", arenaID), zap.String("caller", caller))
	}
	return l.w
}

// Release drops one hold on a session and stops its watcher once nobody holds it.
func (r *Registry) Release(arenaID uint64, caller string) {
	var stop *Watcher
	r.leases.Compute(SessionKey(arenaID, caller), func(old *lease, loaded bool) (*lease, xsync.ComputeOp) {
		if !loaded {
			return nil, xsync.CancelOp
		}
		if old.refs <= 1 {
			stop = old.w
			return nil, xsync.DeleteOp
		}
		return &lease{w: old.w, refs: old.refs - 1}, xsync.UpdateOp
	})
	if stop != nil {
		stop.Stop()
		r.retire(arenaID, caller)
	}
}

// Running returns the watcher of a session if one is running.
func (r *Registry) Running(arenaID uint64, caller string) (*Watcher, bool) {
	l, ok := r.leases.Load(SessionKey(arenaID, caller))
	if !ok {
		return nil, false
	}
	return l.w, true
}

// Size is the number of running watchers.
func (r *Registry) Size() int {
	return r.leases.Size()
}

// View returns the current view of a session. A running watcher answers from memory; otherwise
// a one-shot pass is performed without starting a loop.
func (r *Registry) View(ctx context.Context, arenaID uint64, caller string) (*arena.View, error) {
	if w, ok := r.Running(arenaID, caller); ok {
		if v := w.View(); v != nil {
			return v, nil
		}
		if err := w.Refresh(ctx); err != nil {
			return nil, err
		}
		if v := w.View(); v != nil {
			return v, nil
		}
		return nil, ErrStopped
	}

	// A one-shot read reuses a live overlay but never stores a new one.
	overlay, ok := r.overlays.Load(SessionKey(arenaID, caller))
	if !ok {
		overlay = arena.NewOverlay()
	}
	w := New(arenaID, caller, r.fetcher, r.store, nil, overlay, r.clock, r.logger, r.cfg)
	w.RefreshContent(ctx)
	if err := w.Refresh(ctx); err != nil {
		return nil, err
	}
	return w.View(), nil
}

// StopAll stops every running watcher.
func (r *Registry) StopAll() {
	r.leases.Range(func(key string, l *lease) bool {
		r.leases.Delete(key)
		l.w.Stop()
		return true
	})
}
