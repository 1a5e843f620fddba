package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultListSpec refreshes the recent list every 5 seconds (seconds field enabled).
const DefaultListSpec = "*/5 * * * * *"

// Lobby keeps the list of recent arenas fresh on a cron schedule.
type Lobby struct {
	store  content.Store
	limit  int
	logger *zap.Logger

	cron *cron.Cron
	spec string

	mu        sync.RWMutex
	arenas    []arena.Summary
	updatedAt time.Time
}

// NewLobby returns a lobby listing up to limit arenas.
func NewLobby(store content.Store, limit int, spec string, logger *zap.Logger) *Lobby {
	if limit <= 0 {
		limit = content.DefaultListLimit
	}
	if spec == "" {
		spec = DefaultListSpec
	}
	return &Lobby{store: store, limit: limit, spec: spec, logger: logger, arenas: []arena.Summary{}}
}

// Refresh reloads the list once. On failure the previous list is kept.
func (l *Lobby) Refresh(ctx context.Context) error {
	rows, err := l.store.Recent(ctx, l.limit)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.arenas = rows
	l.updatedAt = time.Now()
	l.mu.Unlock()
	return nil
}

// List returns the cached list and when it was loaded.
func (l *Lobby) List() ([]arena.Summary, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]arena.Summary, len(l.arenas))
	copy(out, l.arenas)
	return out, l.updatedAt
}

// Start loads the list and schedules periodic refreshes.
func (l *Lobby) Start(ctx context.Context) error {
	l.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger), cron.Recover(cron.DefaultLogger)))

	_, err := l.cron.AddFunc(l.spec, func() {
		rctx, cancel := context.WithTimeout(ctx, 4*time.Second)
		defer cancel()
		if err := l.Refresh(rctx); err != nil {
			l.logger.Warn("recent arenas refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	if err := l.Refresh(ctx); err != nil {
		l.logger.Warn("initial recent arenas load failed", zap.Error(err))
	}
	l.cron.Start()
	l.logger.Info("recent arenas refresher started", zap.String("cronSpec", l.spec))
	return nil
}

// Stop waits for a running refresh to finish.
func (l *Lobby) Stop() {
	if l.cron != nil {
		<-l.cron.Stop().Done()
	}
}
