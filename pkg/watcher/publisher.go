package watcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/canopy-network/arenax/pkg/redis"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Publisher receives every merged view a watcher produces. Implementations are best effort.
type Publisher interface {
	Publish(ctx context.Context, view *arena.View)
}

// SessionKey identifies an (arena, caller) session. Callers are compared case-insensitively.
func SessionKey(arenaID uint64, caller string) string {
	return fmt.Sprintf("%d|%s", arenaID, arena.AddressKey(caller))
}

// ViewStore keeps the latest view of every session in memory.
type ViewStore struct {
	views *xsync.Map[string, arena.View]
}

func NewViewStore() *ViewStore {
	return &ViewStore{views: xsync.NewMap[string, arena.View]()}
}

func (s *ViewStore) Publish(_ context.Context, view *arena.View) {
	s.views.Store(SessionKey(view.ArenaID, view.Caller), *view)
}

// Latest returns the last published view of a session.
func (s *ViewStore) Latest(arenaID uint64, caller string) (arena.View, bool) {
	return s.views.Load(SessionKey(arenaID, caller))
}

// Forget drops a session's view.
func (s *ViewStore) Forget(arenaID uint64, caller string) {
	s.views.Delete(SessionKey(arenaID, caller))
}

// viewPublisher is the subset of *redis.Client used for fan-out.
type viewPublisher interface {
	Publish(ctx context.Context, channel string, message interface{})
}

// RedisPublisher fans views out on the per-arena Pub/Sub channel so every gateway replica can
// serve websocket clients.
type RedisPublisher struct {
	client viewPublisher
	logger *zap.Logger
}

func NewRedisPublisher(client viewPublisher, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, view *arena.View) {
	payload, err := json.Marshal(view)
	if err != nil {
		p.logger.Warn("failed to encode view", zap.Uint64("arenaId", view.ArenaID), zap.Error(err))
		return
	}
	p.client.Publish(ctx, redis.ViewChannel(view.ArenaID), payload)
}

// MultiPublisher publishes to every non-nil publisher in order.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, view *arena.View) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, view)
		}
	}
}
