package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateNextBackoff(t *testing.T) {
	tests := []struct {
		name         string
		current      time.Duration
		max          time.Duration
		factor       float64
		jitterFactor float64
		expectMin    time.Duration
		expectMax    time.Duration
	}{
		{"initial backoff doubles", time.Second, 30 * time.Second, 2.0, 0.1, 1800 * time.Millisecond, 2200 * time.Millisecond},
		{"respects maximum", 20 * time.Second, 30 * time.Second, 2.0, 0.1, 27 * time.Second, 30 * time.Second},
		{"no jitter produces exact value", 5 * time.Second, 30 * time.Second, 2.0, 0.0, 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				got := CalculateNextBackoff(tt.current, tt.max, tt.factor, tt.jitterFactor)
				assert.GreaterOrEqual(t, got, tt.expectMin)
				assert.LessOrEqual(t, got, tt.expectMax)
			}
		})
	}
}

func TestArenaSubscriptions(t *testing.T) {
	subs := NewArenaSubscriptions()

	assert.True(t, subs.Subscribe(7))
	assert.False(t, subs.Subscribe(7), "second subscribe is a no-op")
	assert.True(t, subs.Subscribe(3))
	assert.Equal(t, []uint64{3, 7}, subs.All())

	assert.True(t, subs.Unsubscribe(7))
	assert.False(t, subs.Unsubscribe(7))
	assert.False(t, subs.IsSubscribed(7))
	assert.True(t, subs.IsSubscribed(3))
}

func TestFilterView(t *testing.T) {
	c, _ := newTestController(t)
	subs := NewArenaSubscriptions()
	subs.Subscribe(7)

	payload, ok := c.filterView("arena:7:view.updated", `{"arenaId":7,"caller":"`+alice+`"}`, subs, alice)
	require.True(t, ok)
	assert.Equal(t, float64(7), payload["arenaId"])

	_, ok = c.filterView("arena:7:view.updated", `{"arenaId":7,"caller":"`+bob+`"}`, subs, alice)
	assert.False(t, ok, "views of other callers are not forwarded")

	_, ok = c.filterView("arena:8:view.updated", `{"arenaId":8}`, subs, "")
	assert.False(t, ok, "unsubscribed arena")

	_, ok = c.filterView("arena:7:view.updated", `{"arenaId":7}`, subs, "")
	assert.True(t, ok, "anonymous views match anonymous clients")

	_, ok = c.filterView("arena:7:view.updated", `not json`, subs, "")
	assert.False(t, ok)
}

func TestWebSocketRequiresRedis(t *testing.T) {
	_, h := newTestController(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReleaseForgetsCachedView(t *testing.T) {
	c, _ := newTestController(t)
	c.App.Views.Publish(context.Background(), &arena.View{ArenaID: 1, Caller: alice})

	c.App.Registry.Acquire(1, alice)
	c.App.Registry.Acquire(1, alice)

	c.release(1, alice)
	_, ok := c.App.Views.Latest(1, alice)
	assert.True(t, ok, "still held by another subscriber")

	c.release(1, alice)
	_, ok = c.App.Views.Latest(1, alice)
	assert.False(t, ok)
}

func TestWebSocketOriginCheck(t *testing.T) {
	c, _ := newTestController(t)
	check := c.upgrader().CheckOrigin

	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://arena.local/api/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, check(req("")), "non-browser clients send no origin")
	assert.True(t, check(req("http://arena.local")), "same origin")
	assert.True(t, check(req("http://localhost:5173")), "configured origin")
	assert.False(t, check(req("https://evil.example")))
}
