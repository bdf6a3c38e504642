package broadcast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/queue"
)

// failingCountStore wraps a MemoryStore and fails CountWaiting.
type failingCountStore struct {
	*queue.MemoryStore
}

func (f *failingCountStore) CountWaiting(ctx context.Context, role queue.Role) (int, error) {
	return 0, errors.New("store down")
}

func TestPublishQueueCountsBroadcastsBothRoles(t *testing.T) {
	store := queue.NewMemoryStore()
	ctx := context.Background()

	_, err := store.UpsertEntry(ctx, "host-1", queue.RoleHost, "emberfall", "")
	require.NoError(t, err)
	for _, name := range []string{"alice", "bob"} {
		_, err := store.UpsertEntry(ctx, name, queue.RolePlayer, "", "char-"+name)
		require.NoError(t, err)
	}

	hub := NewHub()
	defer hub.Close()
	b := NewBroadcaster(hub, store, zap.NewNop())

	ch, cancel := hub.Subscribe(4)
	defer cancel()

	b.PublishQueueCounts(ctx)

	ev := <-ch
	assert.Equal(t, KindQueueUpdate, ev.Kind)
	counts, ok := ev.Payload.(QueueCounts)
	require.True(t, ok)
	assert.Equal(t, 2, counts.WaitingPlayers)
	assert.Equal(t, 1, counts.WaitingDMs)
}

func TestPublishQueueCountsSkipsOnStoreError(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	b := NewBroadcaster(hub, &failingCountStore{queue.NewMemoryStore()}, zap.NewNop())

	ch, cancel := hub.Subscribe(1)
	defer cancel()

	b.PublishQueueCounts(context.Background())

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q after store failure", ev.Kind)
	default:
	}
}

func TestPublishJoined(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	b := NewBroadcaster(hub, queue.NewMemoryStore(), zap.NewNop())

	ch, cancel := hub.Subscribe(1)
	defer cancel()

	entry := &queue.QueueEntry{ID: "e1", ParticipantID: "alice", Role: queue.RolePlayer}
	b.PublishJoined(entry)

	ev := <-ch
	assert.Equal(t, KindJoinedQueue, ev.Kind)
	joined, ok := ev.Payload.(JoinedQueue)
	require.True(t, ok)
	assert.Equal(t, "alice", joined.Entry.ParticipantID)
}

func TestPublishSessionEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	b := NewBroadcaster(hub, queue.NewMemoryStore(), zap.NewNop())

	ch, cancel := hub.Subscribe(4)
	defer cancel()

	sess := &queue.TableSession{ID: "s1", HostID: "host-1", Status: queue.SessionLoading}
	b.PublishSessionFormed(sess)
	b.PublishStageStarted("s1", 180)
	b.PublishSessionClosed("s1")

	ev := <-ch
	assert.Equal(t, KindTableCreated, ev.Kind)

	ev = <-ch
	assert.Equal(t, KindAdStart, ev.Kind)
	ad, ok := ev.Payload.(AdStart)
	require.True(t, ok)
	assert.Equal(t, "s1", ad.SessionID)
	assert.Equal(t, 180, ad.Seconds)

	ev = <-ch
	assert.Equal(t, KindTableClosed, ev.Kind)
	closed, ok := ev.Payload.(TableClosed)
	require.True(t, ok)
	assert.Equal(t, "s1", closed.SessionID)
}
