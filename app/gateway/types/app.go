package types

import (
	"context"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/canopy-network/arenax/pkg/redis"
	"github.com/canopy-network/arenax/pkg/rpc"
	"github.com/canopy-network/arenax/pkg/watcher"
	"go.uber.org/zap"
)

type App struct {
	// Ledger client (reads and transaction submission)
	Ledger rpc.Client

	// Off-chain content service (nil when CONTENT_URL is unset)
	Content content.Store

	// Shared worker pool for concurrent ledger reads
	Pool pond.Pool

	// Per-session watchers, action executor and recent arenas list
	Registry *watcher.Registry
	Executor *watcher.Executor
	Lobby    *watcher.Lobby

	// Latest view per session
	Views *watcher.ViewStore

	// Action log (nil when Redis is disabled)
	Activity watcher.ActivityLog

	// Redis Client (for WebSocket real-time views)
	RedisClient *redis.Client

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server

	// Cancels every watcher started on behalf of clients
	StopWatchers context.CancelFunc
}

// Start starts the application and blocks until ctx is done.
func (a *App) Start(ctx context.Context) {
	if a.Lobby != nil {
		if err := a.Lobby.Start(ctx); err != nil {
			a.Logger.Fatal("Unable to start recent arenas refresher", zap.Error(err))
		}
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	if a.Lobby != nil {
		a.Lobby.Stop()
	}

	a.Logger.Info("stopping watchers", zap.Int("running", a.Registry.Size()))
	a.Registry.StopAll()
	if a.StopWatchers != nil {
		a.StopWatchers()
	}
	if a.Pool != nil {
		a.Pool.StopAndWait()
	}

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	a.Logger.Info("さようなら!")
}
