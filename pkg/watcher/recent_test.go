package watcher

import (
	"context"
	"testing"

	"github.com/canopy-network/arenax/pkg/arena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLobbyRefreshKeepsPreviousOnFailure(t *testing.T) {
	store := newFakeStore()
	store.recent = []arena.Summary{{ID: 2, Status: arena.StatusVoting}, {ID: 1, Status: arena.StatusSettled}}
	l := NewLobby(store, 0, "", zaptest.NewLogger(t))

	require.NoError(t, l.Refresh(context.Background()))
	rows, at := l.List()
	require.Len(t, rows, 2)
	assert.False(t, at.IsZero())

	store.Fail("recent", errDown)
	require.ErrorIs(t, l.Refresh(context.Background()), errDown)
	rows, _ = l.List()
	assert.Len(t, rows, 2)
}

func TestLobbyStartAndStop(t *testing.T) {
	store := newFakeStore()
	l := NewLobby(store, 5, DefaultListSpec, zaptest.NewLogger(t))

	require.NoError(t, l.Start(context.Background()))
	assert.GreaterOrEqual(t, store.Calls("recent"), 1, "list is loaded on start")
	l.Stop()
}

func TestLobbyRejectsBadSpec(t *testing.T) {
	l := NewLobby(newFakeStore(), 5, "not a spec", zaptest.NewLogger(t))
	assert.Error(t, l.Start(context.Background()))
}
