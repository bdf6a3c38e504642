package match

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/kynortleon/TableHop/internal/broadcast"
	"github.com/kynortleon/TableHop/internal/queue"
)

// stubValidator blocks or rejects specific participants and counts calls.
type stubValidator struct {
	blocked    map[string]bool // player participant ID -> blocked for any host
	ineligible map[string]bool // player participant ID -> ineligible
	blockErr   error
	eligErr    error

	blockCalls int
	eligCalls  int
}

func (v *stubValidator) IsBlocked(ctx context.Context, host, player *queue.QueueEntry) (bool, error) {
	v.blockCalls++
	if v.blockErr != nil {
		return false, v.blockErr
	}
	return v.blocked[player.ParticipantID], nil
}

func (v *stubValidator) IsEligible(ctx context.Context, player *queue.QueueEntry, scenarioCode string) (bool, error) {
	v.eligCalls++
	if v.eligErr != nil {
		return false, v.eligErr
	}
	return !v.ineligible[player.ParticipantID], nil
}

// recordingTracker collects sessions handed over by the engine.
type recordingTracker struct {
	sessions []*queue.TableSession
}

func (r *recordingTracker) Track(sess *queue.TableSession) {
	r.sessions = append(r.sessions, sess)
}

type engineFixture struct {
	store     *queue.MemoryStore
	validator *stubValidator
	tracker   *recordingTracker
	engine    *Engine
	now       time.Time
}

func newEngineFixture(t *testing.T, groupSize int) *engineFixture {
	t.Helper()
	f := &engineFixture{
		store:     queue.NewMemoryStore(),
		validator: &stubValidator{blocked: map[string]bool{}, ineligible: map[string]bool{}},
		tracker:   &recordingTracker{},
		now:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.store.Now = func() time.Time { return f.now }
	hub := broadcast.NewHub()
	t.Cleanup(hub.Close)
	events := broadcast.NewBroadcaster(hub, f.store, zap.NewNop())
	f.engine = NewEngine(f.store, f.validator, events, f.tracker, groupSize, zap.NewNop())
	return f
}

// addEntry upserts an entry one second later than the previous one, so
// insertion order is queue order.
func (f *engineFixture) addEntry(t *testing.T, participantID string, role queue.Role, scenarioCode, characterRef string) *queue.QueueEntry {
	t.Helper()
	f.now = f.now.Add(time.Second)
	entry, err := f.store.UpsertEntry(context.Background(), participantID, role, scenarioCode, characterRef)
	require.NoError(t, err)
	return entry
}

func (f *engineFixture) addPlayers(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("player-%02d", i)
		f.addEntry(t, name, queue.RolePlayer, "", "char-"+name)
	}
}

func TestCycleSelectsOldestPlayersInOrder(t *testing.T) {
	f := newEngineFixture(t, 4)
	ctx := context.Background()

	f.addEntry(t, "host-1", queue.RoleHost, "emberfall", "")
	f.addPlayers(t, 6)

	require.NoError(t, f.engine.RunMatchCycle(ctx))

	require.Len(t, f.tracker.sessions, 1)
	sess := f.tracker.sessions[0]
	assert.Equal(t, "host-1", sess.HostID)
	assert.Equal(t, "emberfall", sess.ScenarioCode)
	assert.Equal(t, []string{"player-00", "player-01", "player-02", "player-03"}, sess.PlayerIDs)
	assert.Equal(t, queue.SessionLoading, sess.Status)

	// The two newest players stay waiting for the next cycle.
	waiting, err := f.store.ListWaiting(ctx, queue.RolePlayer)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, "player-04", waiting[0].ParticipantID)
	assert.Equal(t, "player-05", waiting[1].ParticipantID)
}

func TestCycleSkipsBlockedAndIneligiblePlayers(t *testing.T) {
	f := newEngineFixture(t, 4)
	ctx := context.Background()

	f.addEntry(t, "host-1", queue.RoleHost, "emberfall", "")
	f.addPlayers(t, 6)
	f.validator.blocked["player-00"] = true
	f.validator.ineligible["player-02"] = true

	require.NoError(t, f.engine.RunMatchCycle(ctx))

	require.Len(t, f.tracker.sessions, 1)
	assert.Equal(t, []string{"player-01", "player-03", "player-04", "player-05"},
		f.tracker.sessions[0].PlayerIDs)

	// Skipped players keep their spot in the queue.
	waiting, err := f.store.ListWaiting(ctx, queue.RolePlayer)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, "player-00", waiting[0].ParticipantID)
	assert.Equal(t, "player-02", waiting[1].ParticipantID)
}

func TestCycleWithNoHostsDoesNothing(t *testing.T) {
	f := newEngineFixture(t, 4)
	f.addPlayers(t, 8)

	require.NoError(t, f.engine.RunMatchCycle(context.Background()))
	assert.Empty(t, f.tracker.sessions)
	assert.Zero(t, f.validator.blockCalls)
}

func TestCycleWithNoPlayersDoesNothing(t *testing.T) {
	f := newEngineFixture(t, 4)
	f.addEntry(t, "host-1", queue.RoleHost, "emberfall", "")

	require.NoError(t, f.engine.RunMatchCycle(context.Background()))
	assert.Empty(t, f.tracker.sessions)
}

func TestHostWithoutScenarioNeverConsultsValidator(t *testing.T) {
	f := newEngineFixture(t, 4)
	ctx := context.Background()

	f.addEntry(t, "host-1", queue.RoleHost, "", "")
	f.addPlayers(t, 4)

	require.NoError(t, f.engine.RunMatchCycle(ctx))

	assert.Empty(t, f.tracker.sessions)
	assert.Zero(t, f.validator.blockCalls)
	assert.Zero(t, f.validator.eligCalls)

	// Everyone stays waiting.
	n, err := f.store.CountWaiting(ctx, queue.RolePlayer)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestEarlierHostConsumesPlayersFirst(t *testing.T) {
	f := newEngineFixture(t, 4)
	ctx := context.Background()

	f.addEntry(t, "host-1", queue.RoleHost, "emberfall", "")
	f.addEntry(t, "host-2", queue.RoleHost, "hollow-crown", "")
	f.addPlayers(t, 4)

	require.NoError(t, f.engine.RunMatchCycle(ctx))

	// Only the older host forms a table; host-2 waits for more players.
	require.Len(t, f.tracker.sessions, 1)
	assert.Equal(t, "host-1", f.tracker.sessions[0].HostID)

	host2, err := f.store.FindByParticipant(ctx, "host-2")
	require.NoError(t, err)
	assert.Equal(t, queue.StatusWaiting, host2.Status)
}

func TestCycleFormsMultipleDisjointTables(t *testing.T) {
	f := newEngineFixture(t, 4)
	ctx := context.Background()

	f.addEntry(t, "host-1", queue.RoleHost, "emberfall", "")
	f.addEntry(t, "host-2", queue.RoleHost, "hollow-crown", "")
	f.addPlayers(t, 8)

	require.NoError(t, f.engine.RunMatchCycle(ctx))

	require.Len(t, f.tracker.sessions, 2)
	first, second := f.tracker.sessions[0], f.tracker.sessions[1]
	assert.Equal(t, "host-1", first.HostID)
	assert.Equal(t, "host-2", second.HostID)
	assert.Equal(t, []string{"player-00", "player-01", "player-02", "player-03"}, first.PlayerIDs)
	assert.Equal(t, []string{"player-04", "player-05", "player-06", "player-07"}, second.PlayerIDs)

	n, err := f.store.CountWaiting(ctx, queue.RolePlayer)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// failingFormStore wraps a MemoryStore and fails every FormSession.
type failingFormStore struct {
	*queue.MemoryStore
}

func (s *failingFormStore) FormSession(ctx context.Context, host *queue.QueueEntry, players []*queue.QueueEntry) (*queue.TableSession, error) {
	return nil, errors.New("commit failed")
}

func TestCommitFailureLeavesEntriesWaiting(t *testing.T) {
	mem := queue.NewMemoryStore()
	store := &failingFormStore{mem}
	tracker := &recordingTracker{}
	hub := broadcast.NewHub()
	t.Cleanup(hub.Close)
	events := broadcast.NewBroadcaster(hub, store, zap.NewNop())
	engine := NewEngine(store, &stubValidator{blocked: map[string]bool{}, ineligible: map[string]bool{}}, events, tracker, 4, zap.NewNop())

	ctx := context.Background()
	_, err := mem.UpsertEntry(ctx, "host-1", queue.RoleHost, "emberfall", "")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := mem.UpsertEntry(ctx, fmt.Sprintf("player-%d", i), queue.RolePlayer, "", "char")
		require.NoError(t, err)
	}

	require.NoError(t, engine.RunMatchCycle(ctx))

	assert.Empty(t, tracker.sessions)
	n, err := mem.CountWaiting(ctx, queue.RolePlayer)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// failingListStore wraps a MemoryStore and fails every ListWaiting.
type failingListStore struct {
	*queue.MemoryStore
}

func (s *failingListStore) ListWaiting(ctx context.Context, role queue.Role) ([]*queue.QueueEntry, error) {
	return nil, errors.New("pool unreadable")
}

func TestUnreadablePoolAbortsCycle(t *testing.T) {
	store := &failingListStore{queue.NewMemoryStore()}
	hub := broadcast.NewHub()
	t.Cleanup(hub.Close)
	events := broadcast.NewBroadcaster(hub, store, zap.NewNop())
	engine := NewEngine(store, &stubValidator{}, events, &recordingTracker{}, 4, zap.NewNop())

	err := engine.RunMatchCycle(context.Background())
	assert.Error(t, err)
}

func TestFailureReasonPriority(t *testing.T) {
	tests := []struct {
		name       string
		blocked    []string
		ineligible []string
		want       FailReason
	}{
		{
			name: "insufficient when nothing else went wrong",
			want: ReasonInsufficient,
		},
		{
			name:       "ineligible outranks insufficient",
			ineligible: []string{"player-00"},
			want:       ReasonIneligible,
		},
		{
			name:    "blocked outranks ineligible",
			blocked: []string{"player-00"},
			// player-01 is also ineligible, but blocked wins.
			ineligible: []string{"player-01"},
			want:       ReasonBlocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, 4)
			host := f.addEntry(t, "host-1", queue.RoleHost, "emberfall", "")
			f.addPlayers(t, 3)
			for _, p := range tt.blocked {
				f.validator.blocked[p] = true
			}
			for _, p := range tt.ineligible {
				f.validator.ineligible[p] = true
			}

			players, err := f.store.ListWaiting(context.Background(), queue.RolePlayer)
			require.NoError(t, err)

			group, reason := f.engine.formCandidateGroup(context.Background(), host, players)
			assert.Nil(t, group)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestValidatorErrorCountsAsIneligible(t *testing.T) {
	f := newEngineFixture(t, 4)
	host := f.addEntry(t, "host-1", queue.RoleHost, "emberfall", "")
	f.addPlayers(t, 3)
	f.validator.eligErr = errors.New("rules script crashed")

	players, err := f.store.ListWaiting(context.Background(), queue.RolePlayer)
	require.NoError(t, err)

	group, reason := f.engine.formCandidateGroup(context.Background(), host, players)
	assert.Nil(t, group)
	assert.Equal(t, ReasonIneligible, reason)
}

// Property-based tests

func TestPropertySessionsNeverSharePlayers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hosts := rapid.IntRange(1, 5).Draw(t, "hosts")
		players := rapid.IntRange(0, 25).Draw(t, "players")
		groupSize := rapid.IntRange(1, 5).Draw(t, "groupSize")

		store := queue.NewMemoryStore()
		tracker := &recordingTracker{}
		hub := broadcast.NewHub()
		defer hub.Close()
		events := broadcast.NewBroadcaster(hub, store, zap.NewNop())
		engine := NewEngine(store, &stubValidator{blocked: map[string]bool{}, ineligible: map[string]bool{}}, events, tracker, groupSize, zap.NewNop())

		ctx := context.Background()
		for i := 0; i < hosts; i++ {
			if _, err := store.UpsertEntry(ctx, fmt.Sprintf("host-%d", i), queue.RoleHost, "emberfall", ""); err != nil {
				t.Fatalf("upsert host: %v", err)
			}
		}
		for i := 0; i < players; i++ {
			if _, err := store.UpsertEntry(ctx, fmt.Sprintf("player-%d", i), queue.RolePlayer, "", "char"); err != nil {
				t.Fatalf("upsert player: %v", err)
			}
		}

		if err := engine.RunMatchCycle(ctx); err != nil {
			t.Fatalf("cycle: %v", err)
		}

		// No player appears in two sessions, every table is exactly
		// groupSize, and the total number of tables is bounded by supply.
		seen := make(map[string]bool)
		for _, sess := range tracker.sessions {
			if len(sess.PlayerIDs) != groupSize {
				t.Fatalf("session %s has %d players, want %d", sess.ID, len(sess.PlayerIDs), groupSize)
			}
			for _, pid := range sess.PlayerIDs {
				if seen[pid] {
					t.Fatalf("player %s assigned twice", pid)
				}
				seen[pid] = true
			}
		}
		maxTables := players / groupSize
		if maxTables > hosts {
			maxTables = hosts
		}
		if len(tracker.sessions) != maxTables {
			t.Fatalf("formed %d tables, want %d", len(tracker.sessions), maxTables)
		}
	})
}
