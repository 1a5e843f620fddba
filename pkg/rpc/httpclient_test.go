package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_FailsOverOnServerError(t *testing.T) {
	var badHits int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&badHits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good, _ := newTestServer(t, map[string]any{headPath: HeadBlock{Height: 10, Time: 1700}})

	c := newTestClient(bad.URL, good.URL)
	ts, err := c.LatestBlockTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1700), ts)

	_, err = c.LatestBlockTime(context.Background())
	require.NoError(t, err)

	// Breaker opens after two failures, third call skips the bad endpoint.
	_, err = c.LatestBlockTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&badHits))
}

func TestHTTPClient_ClientErrorIsNotRetried(t *testing.T) {
	var hits int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("execution reverted: already joined"))
	})
	a := httptest.NewServer(handler)
	defer a.Close()
	b := httptest.NewServer(handler)
	defer b.Close()

	c := newTestClient(a.URL, b.URL)
	_, err := c.Settle(context.Background(), "0xabc", 1)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Contains(t, se.Error(), "already joined")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestHTTPClient_NoEndpoints(t *testing.T) {
	c := newTestClient()
	_, err := c.Record(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestHTTPClient_CancelledContext(t *testing.T) {
	srv, _ := newTestServer(t, map[string]any{headPath: HeadBlock{Height: 1, Time: 1}})
	c := newTestClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.LatestBlockTime(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&StatusError{Code: http.StatusNotFound}))
	assert.False(t, IsNotFound(&StatusError{Code: http.StatusBadRequest}))
	assert.False(t, IsNotFound(nil))
}
