package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	arenaredis "github.com/canopy-network/arenax/pkg/redis"
	"github.com/canopy-network/arenax/pkg/watcher"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// upgrader accepts same-origin connections and the configured cross-origin ones; the session
// cookie rides along, so other sites must not be able to open a stream.
func (c *Controller) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 8192,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
				return true
			}
			return originAllowed(origin, c.Origins)
		},
	}
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action  string `json:"action"`  // "subscribe" or "unsubscribe"
	ArenaID uint64 `json:"arenaId"` // Arena to follow
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`    // "view.updated", "subscribed", "unsubscribed", "error", "info"
	Payload interface{} `json:"payload"` // Event-specific data
}

// arenaSubscriptions tracks the arenas a client follows.
type arenaSubscriptions struct {
	mu     sync.RWMutex
	arenas map[uint64]bool
}

// NewArenaSubscriptions creates a new subscription tracker.
func NewArenaSubscriptions() *arenaSubscriptions {
	return &arenaSubscriptions{arenas: make(map[uint64]bool)}
}

// Subscribe adds an arena and reports whether it was newly added.
func (s *arenaSubscriptions) Subscribe(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.arenas[id] {
		return false
	}
	s.arenas[id] = true
	return true
}

// Unsubscribe removes an arena and reports whether it was subscribed.
func (s *arenaSubscriptions) Unsubscribe(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.arenas[id] {
		return false
	}
	delete(s.arenas, id)
	return true
}

func (s *arenaSubscriptions) IsSubscribed(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arenas[id]
}

// All returns the subscribed ids in ascending order.
func (s *arenaSubscriptions) All() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.arenas))
	for id := range s.arenas {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HandleWebSocket upgrades HTTP connection to WebSocket and streams live arena views for the
// session caller.
//
// Protocol:
// Client sends: {"action": "subscribe", "arenaId": 7}
// Client sends: {"action": "unsubscribe", "arenaId": 7}
//
// Server sends:
// - {"type": "view.updated", "payload": {...view...}}
// - {"type": "subscribed", "payload": {"arenaId": 7}}
// - {"type": "unsubscribed", "payload": {"arenaId": 7}}
// - {"type": "error", "payload": {"message": "..."}}
//
// Subscribing keeps a watcher running for (arena, caller) until the client unsubscribes or
// disconnects. All goroutines have panic recovery.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time views not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	caller := c.sessionCaller(r)

	conn, err := c.upgrader().Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr), zap.String("caller", caller))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := NewArenaSubscriptions()
	defer func() {
		for _, id := range subs.All() {
			c.release(id, caller)
		}
	}()

	send := make(chan ServerMessage, 256)
	var wg sync.WaitGroup

	guard := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in "+name+" goroutine",
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}()
	}

	guard("Redis subscriber", func() { c.subscribeToRedis(ctx, send, subs, caller) })
	guard("ping ticker", func() { c.sendPings(ctx, conn) })
	guard("message writer", func() { c.writeMessages(ctx, conn, send) })

	// Blocks until the connection closes
	c.readClientMessages(ctx, conn, cancel, subs, send, caller)

	cancel()
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis subscribes to every arena view channel and forwards the views of subscribed
// arenas that belong to caller. Reconnects with exponential backoff.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *arenaSubscriptions, caller string) {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	attemptNum := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		attemptNum++
		subscriptionErr := c.attemptRedisSubscription(ctx, send, subs, caller, attemptNum)
		if ctx.Err() != nil {
			return
		}

		if subscriptionErr != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(subscriptionErr),
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		}

		select {
		case send <- ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attemptNum,
				"recoverable": true,
			},
		}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		backoff = CalculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

func (c *Controller) attemptRedisSubscription(ctx context.Context, send chan<- ServerMessage, subs *arenaSubscriptions, caller string, attemptNum int) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, arenaredis.ViewPattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	if attemptNum > 1 {
		select {
		case send <- ServerMessage{Type: "info", Payload: map[string]interface{}{"message": "Redis connection established", "attempt": attemptNum}}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return c.processRedisMessages(ctx, pubsub, send, subs, caller)
}

func (c *Controller) processRedisMessages(ctx context.Context, pubsub *redis.PubSub, send chan<- ServerMessage, subs *arenaSubscriptions, caller string) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			payload, ok := c.filterView(msg.Channel, msg.Payload, subs, caller)
			if !ok {
				continue
			}
			select {
			case send <- ServerMessage{Type: "view.updated", Payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// filterView decodes a view message and reports whether it should reach this client: the arena
// must be subscribed and the view must have been derived for the same caller.
func (c *Controller) filterView(channel, raw string, subs *arenaSubscriptions, caller string) (map[string]interface{}, bool) {
	id, ok := arenaredis.ExtractArenaID(channel)
	if !ok {
		c.App.Logger.Warn("Failed to extract arena id from channel", zap.String("channel", channel))
		return nil, false
	}
	if !subs.IsSubscribed(id) {
		return nil, false
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		c.App.Logger.Error("Failed to parse Redis message", zap.Error(err), zap.String("channel", channel))
		return nil, false
	}
	viewCaller, _ := payload["caller"].(string)
	if arena.AddressKey(viewCaller) != arena.AddressKey(caller) {
		return nil, false
	}
	return payload, true
}

// CalculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
func CalculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	// random value between -jitterFactor and +jitterFactor
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}
	return nextWithJitter
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages writes messages from the send channel to the WebSocket connection.
func (c *Controller) writeMessages(ctx context.Context, conn *websocket.Conn, send <-chan ServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
				return
			}
		}
	}
}

// currentView returns the watcher's view, falling back to the last one published for the
// session while the first pass of a fresh watcher is still running.
func (c *Controller) currentView(w *watcher.Watcher) *arena.View {
	if v := w.View(); v != nil {
		return v
	}
	if c.App.Views == nil {
		return nil
	}
	if v, ok := c.App.Views.Latest(w.ID(), w.Caller()); ok {
		return &v
	}
	return nil
}

// release drops one hold on a session watcher and forgets its cached view once nothing holds it.
func (c *Controller) release(id uint64, caller string) {
	c.App.Registry.Release(id, caller)
	if _, running := c.App.Registry.Running(id, caller); !running && c.App.Views != nil {
		c.App.Views.Forget(id, caller)
	}
}

// readClientMessages handles subscription requests and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *arenaSubscriptions, send chan<- ServerMessage, caller string) {
	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	reply := func(msg ServerMessage) bool {
		select {
		case send <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.App.Logger.Debug("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			cancel()
			return
		}

		ok := true
		switch msg.Action {
		case "subscribe":
			if msg.ArenaID == 0 {
				ok = reply(ServerMessage{Type: "error", Payload: map[string]string{"message": "arenaId is required"}})
			} else if subs.Subscribe(msg.ArenaID) {
				w := c.App.Registry.Acquire(msg.ArenaID, caller)
				c.App.Logger.Debug("Client subscribed", zap.Uint64("arenaId", msg.ArenaID))
				ok = reply(ServerMessage{Type: "subscribed", Payload: map[string]uint64{"arenaId": msg.ArenaID}})
				if v := c.currentView(w); ok && v != nil {
					ok = reply(ServerMessage{Type: "view.updated", Payload: v})
				}
			} else {
				ok = reply(ServerMessage{Type: "subscribed", Payload: map[string]uint64{"arenaId": msg.ArenaID}})
			}

		case "unsubscribe":
			if subs.Unsubscribe(msg.ArenaID) {
				c.release(msg.ArenaID, caller)
			}
			ok = reply(ServerMessage{Type: "unsubscribed", Payload: map[string]uint64{"arenaId": msg.ArenaID}})

		default:
			ok = reply(ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}})
		}
		if !ok {
			return
		}
	}
}
