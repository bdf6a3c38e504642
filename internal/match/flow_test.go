package match_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/broadcast"
	"github.com/kynortleon/TableHop/internal/lifecycle"
	"github.com/kynortleon/TableHop/internal/match"
	"github.com/kynortleon/TableHop/internal/queue"
)

// Covers the whole path: join, match cycle, table formed, delay countdown,
// active stage, close. Uses the memory store and millisecond timers.
func TestQueueToClosedTableFlow(t *testing.T) {
	store := queue.NewMemoryStore()
	hub := broadcast.NewHub()
	defer hub.Close()
	events := broadcast.NewBroadcaster(hub, store, zap.NewNop())
	scheduler := lifecycle.NewScheduler(store, events, 10*time.Millisecond, 20*time.Millisecond, 0, zap.NewNop())
	defer scheduler.Stop()
	engine := match.NewEngine(store, match.AllowAll{}, events, scheduler, 2, zap.NewNop())

	ch, cancel := hub.Subscribe(32)
	defer cancel()

	ctx := context.Background()
	_, err := store.UpsertEntry(ctx, "host-1", queue.RoleHost, "emberfall", "")
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, "alice", queue.RolePlayer, "", "char-1")
	require.NoError(t, err)
	_, err = store.UpsertEntry(ctx, "bob", queue.RolePlayer, "", "char-2")
	require.NoError(t, err)

	require.NoError(t, engine.RunMatchCycle(ctx))

	var sessionID string
	seen := make([]broadcast.Kind, 0, 8)
	deadline := time.After(3 * time.Second)
	for {
		var ev broadcast.Event
		select {
		case ev = <-ch:
		case <-deadline:
			t.Fatalf("no tableClosed event, saw %v", seen)
		}
		seen = append(seen, ev.Kind)

		switch ev.Kind {
		case broadcast.KindTableCreated:
			sess, ok := ev.Payload.(*queue.TableSession)
			require.True(t, ok)
			sessionID = sess.ID
			assert.Equal(t, "host-1", sess.HostID)
			assert.Equal(t, []string{"alice", "bob"}, sess.PlayerIDs)
		case broadcast.KindTableClosed:
			closed, ok := ev.Payload.(broadcast.TableClosed)
			require.True(t, ok)
			assert.Equal(t, sessionID, closed.SessionID)

			final, err := store.FindByID(ctx, sessionID)
			require.NoError(t, err)
			assert.Equal(t, queue.SessionClosed, final.Status)
			require.NotNil(t, final.StartedAt)
			require.NotNil(t, final.ClosedAt)

			assert.Contains(t, seen, broadcast.KindAdStart)
			assert.Contains(t, seen, broadcast.KindQueueUpdate)
			return
		}
	}
}
