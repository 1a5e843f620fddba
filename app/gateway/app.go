package gateway

import (
	"context"
	"runtime"
	"strings"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/arenax/app/gateway/types"
	"github.com/canopy-network/arenax/pkg/content"
	"github.com/canopy-network/arenax/pkg/logging"
	"github.com/canopy-network/arenax/pkg/redis"
	"github.com/canopy-network/arenax/pkg/retry"
	"github.com/canopy-network/arenax/pkg/rpc"
	"github.com/canopy-network/arenax/pkg/utils"
	"github.com/canopy-network/arenax/pkg/watcher"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func Initialize(ctx context.Context) *types.App {
	utils.LoadDotEnv()

	logger, err := logging.New("gateway")
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	endpoints := utils.EnvList("LEDGER_RPC_URLS", []string{"http://localhost:50002"})
	contract := utils.Env("ARENA_CONTRACT", "")
	if contract == "" {
		logger.Fatal("ARENA_CONTRACT is required")
	}

	ledger := rpc.NewHTTPFactory(rpc.Opts{
		Contract:        contract,
		Timeout:         utils.EnvDuration("LEDGER_RPC_TIMEOUT", 0),
		RPS:             utils.EnvInt("LEDGER_RPC_RPS", 20),
		Burst:           utils.EnvInt("LEDGER_RPC_BURST", 40),
		BreakerFailures: utils.EnvInt("LEDGER_RPC_BREAKER_FAILURES", 3),
		BreakerCooldown: utils.EnvDuration("LEDGER_RPC_BREAKER_COOLDOWN", 0),
	}).NewClient(endpoints)

	var store content.Store
	var mediaBase string
	if contentURL := strings.TrimSpace(utils.Env("CONTENT_URL", "")); contentURL != "" {
		c := content.NewClient(contentURL, utils.EnvDuration("CONTENT_TIMEOUT", 0))
		store = c
		mediaBase = c.BaseURL()
		logger.Info("Content service configured", zap.String("url", mediaBase))
	} else {
		logger.Warn("CONTENT_URL not set - challenges, entries and profiles will be unavailable")
	}

	// Initialize Redis client for real-time WebSocket views (optional)
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time views will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for WebSocket real-time views")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time views will not be available")
	}

	views := watcher.NewViewStore()
	publishers := watcher.MultiPublisher{views}
	var activity watcher.ActivityLog
	if redisClient != nil {
		publishers = append(publishers, watcher.NewRedisPublisher(redisClient, logger))
		activity = watcher.NewRedisActivity(redisClient)
	}

	pool := pond.NewPool(utils.EnvInt("FETCH_WORKERS", 4*runtime.NumCPU()))
	clock := clockwork.NewRealClock()
	fetcher := watcher.NewFetcher(ledger, pool, clock, logger)

	watchCtx, stopWatchers := context.WithCancel(context.Background())
	registry := watcher.NewRegistry(watchCtx, fetcher, store, publishers, clock, logger, watcher.Config{
		ChainInterval:   utils.EnvDuration("CHAIN_POLL_INTERVAL", watcher.DefaultChainInterval),
		ContentInterval: utils.EnvDuration("CONTENT_POLL_INTERVAL", watcher.DefaultContentInterval),
		MediaBase:       mediaBase,
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = utils.EnvInt("RECEIPT_MAX_ATTEMPTS", retryCfg.MaxRetries)

	app := &types.App{
		Ledger:       ledger,
		Content:      store,
		Pool:         pool,
		Registry:     registry,
		Executor:     watcher.NewExecutor(ledger, store, registry, activity, retryCfg, clock, logger),
		Views:        views,
		Activity:     activity,
		RedisClient:  redisClient,
		Logger:       logger,
		StopWatchers: stopWatchers,
	}
	if store != nil {
		app.Lobby = watcher.NewLobby(store, utils.EnvInt("LIST_LIMIT", content.DefaultListLimit), utils.Env("LIST_CRON", watcher.DefaultListSpec), logger)
	}

	return app
}
