package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got: %s", within, s.Data)
	case <-time.After(within):
		// good: no snapshot
	}
}

func recvClosed(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("subscription was not closed within %v", within)
		}
	}
}

type doc struct {
	Phase string            `json:"phase"`
	Round int               `json:"round"`
	Votes map[string]string `json:"votes,omitempty"`
}

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory(ctx, zap.NewNop())
	t.Cleanup(func() {
		_ = m.Close()
		cancel()
	})
	return m
}

func TestRoom_Update_BroadcastsSnapshotAndVersionIncrements(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "ROOM01", doc{Phase: "night", Round: 1}))

	sub, unsubscribe, err := m.Subscribe(ctx, "ROOM01")
	require.NoError(t, err)
	defer unsubscribe()

	first := recvSnapshot(t, sub, 100*time.Millisecond)
	if first.Version != 0 {
		t.Fatalf("after subscribe: want version=0, got %d", first.Version)
	}

	_, err = m.ApplyPartialUpdate(ctx, "ROOM01", Update{Set: map[string]any{"votes/alice": "bob"}})
	require.NoError(t, err)

	next := recvSnapshot(t, sub, 100*time.Millisecond)
	if next.Version != 1 {
		t.Fatalf("after update: want version=1, got %d", next.Version)
	}
	var d doc
	require.NoError(t, next.Decode(&d))
	require.Equal(t, map[string]string{"alice": "bob"}, d.Votes)
}

func TestRoom_FailedPreconditionDoesNotBroadcast(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "ROOM02", doc{Phase: "night", Round: 1}))

	sub, unsubscribe, err := m.Subscribe(ctx, "ROOM02")
	require.NoError(t, err)
	defer unsubscribe()
	_ = recvSnapshot(t, sub, 100*time.Millisecond)

	_, err = m.ApplyPartialUpdate(ctx, "ROOM02", Update{
		Expect: map[string]any{"phase": "voting"},
		Set:    map[string]any{"phase": "result"},
	})
	require.ErrorIs(t, err, ErrPreconditionFailed)

	recvNoSnapshot(t, sub, 100*time.Millisecond)

	snap, err := m.Get(ctx, "ROOM02")
	require.NoError(t, err)
	require.Equal(t, int64(0), snap.Version)
}

func TestRoom_DropSlowSubscriber(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "ROOM03", doc{Phase: "night", Round: 1}))

	sub, unsubscribe, err := m.Subscribe(ctx, "ROOM03")
	require.NoError(t, err)
	defer unsubscribe()

	// Never read: the outbox fills up and the room must close it rather than block.
	for i := 0; i < 40; i++ {
		_, err := m.ApplyPartialUpdate(ctx, "ROOM03", Update{Set: map[string]any{"round": i}})
		require.NoError(t, err)
	}

	recvClosed(t, sub, 500*time.Millisecond)
}

func TestRoom_RemoveClosesSubscriptions(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "ROOM04", doc{Phase: "lobby"}))

	sub, unsubscribe, err := m.Subscribe(ctx, "ROOM04")
	require.NoError(t, err)
	defer unsubscribe()
	_ = recvSnapshot(t, sub, 100*time.Millisecond)

	require.NoError(t, m.Remove(ctx, "ROOM04"))
	recvClosed(t, sub, 500*time.Millisecond)

	_, err = m.Get(ctx, "ROOM04")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRoom_Unsubscribe_StopsDelivery(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, "ROOM05", doc{Phase: "lobby"}))

	sub, unsubscribe, err := m.Subscribe(ctx, "ROOM05")
	require.NoError(t, err)
	_ = recvSnapshot(t, sub, 100*time.Millisecond)

	unsubscribe()
	recvClosed(t, sub, 500*time.Millisecond)
}
