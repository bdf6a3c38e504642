package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory MatchStore. It backs tests and
// local development; the durable implementation lives in storage/postgres.
// All methods are safe for concurrent use.
type MemoryStore struct {
	mu            sync.Mutex
	entries       map[string]*QueueEntry   // entry ID -> entry
	byParticipant map[string]string        // participant ID -> entry ID
	sessions      map[string]*TableSession // session ID -> session

	// Now supplies timestamps; overridable for deterministic tests.
	Now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:       make(map[string]*QueueEntry),
		byParticipant: make(map[string]string),
		sessions:      make(map[string]*TableSession),
		Now:           time.Now,
	}
}

// UpsertEntry creates or resets the participant's entry to Waiting with a
// fresh CreatedAt.
func (s *MemoryStore) UpsertEntry(ctx context.Context, participantID string, role Role, scenarioCode, characterRef string) (*QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookupLocked(participantID)
	if !ok {
		entry = &QueueEntry{
			ID:            uuid.NewString(),
			ParticipantID: participantID,
		}
		s.entries[entry.ID] = entry
		s.byParticipant[participantID] = entry.ID
	}
	entry.Role = role
	entry.ScenarioCode = scenarioCode
	entry.CharacterRef = characterRef
	entry.Status = StatusWaiting
	entry.CreatedAt = s.Now()

	out := *entry
	return &out, nil
}

// ListWaiting returns Waiting entries for the role, oldest first, ties
// broken by entry ID.
func (s *MemoryStore) ListWaiting(ctx context.Context, role Role) ([]*QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*QueueEntry, 0)
	for _, e := range s.entries {
		if e.Role == role && e.Status == StatusWaiting {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountWaiting returns the number of Waiting entries for the role.
func (s *MemoryStore) CountWaiting(ctx context.Context, role Role) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.Role == role && e.Status == StatusWaiting {
			n++
		}
	}
	return n, nil
}

// MarkStatus batch-updates the status of the given entry IDs. Unknown IDs
// are ignored.
func (s *MemoryStore) MarkStatus(ctx context.Context, ids []string, status EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			e.Status = status
		}
	}
	return nil
}

// FindByParticipant returns the participant's entry, or ErrEntryNotFound.
func (s *MemoryStore) FindByParticipant(ctx context.Context, participantID string) (*QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookupLocked(participantID)
	if !ok {
		return nil, ErrEntryNotFound
	}
	out := *entry
	return &out, nil
}

// Create inserts a new Loading session.
func (s *MemoryStore) Create(ctx context.Context, hostID, scenarioCode string, playerIDs, characterRefs []string) (*TableSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.createLocked(hostID, scenarioCode, playerIDs, characterRefs)
	out := cloneSession(sess)
	return out, nil
}

// Update applies the non-nil fields of the update.
func (s *MemoryStore) Update(ctx context.Context, id string, fields SessionUpdate) (*TableSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if fields.Status != nil {
		sess.Status = *fields.Status
	}
	if fields.StartedAt != nil {
		t := *fields.StartedAt
		sess.StartedAt = &t
	}
	if fields.ClosedAt != nil {
		t := *fields.ClosedAt
		sess.ClosedAt = &t
	}
	if fields.DurationMinutes != nil {
		sess.DurationMinutes = *fields.DurationMinutes
	}
	return cloneSession(sess), nil
}

// FindByID returns the session, or ErrSessionNotFound.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*TableSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// FormSession creates the Loading session and marks the host and player
// entries Matched under a single lock section.
func (s *MemoryStore) FormSession(ctx context.Context, host *QueueEntry, players []*QueueEntry) (*TableSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	playerIDs := make([]string, 0, len(players))
	characterRefs := make([]string, 0, len(players))
	for _, p := range players {
		playerIDs = append(playerIDs, p.ParticipantID)
		if p.CharacterRef != "" {
			characterRefs = append(characterRefs, p.CharacterRef)
		}
	}

	sess := s.createLocked(host.ParticipantID, host.ScenarioCode, playerIDs, characterRefs)

	if e, ok := s.entries[host.ID]; ok {
		e.Status = StatusMatched
	}
	for _, p := range players {
		if e, ok := s.entries[p.ID]; ok {
			e.Status = StatusMatched
		}
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) lookupLocked(participantID string) (*QueueEntry, bool) {
	id, ok := s.byParticipant[participantID]
	if !ok {
		return nil, false
	}
	e, ok := s.entries[id]
	return e, ok
}

func (s *MemoryStore) createLocked(hostID, scenarioCode string, playerIDs, characterRefs []string) *TableSession {
	sess := &TableSession{
		ID:            uuid.NewString(),
		HostID:        hostID,
		ScenarioCode:  scenarioCode,
		PlayerIDs:     append([]string(nil), playerIDs...),
		CharacterRefs: append([]string(nil), characterRefs...),
		Status:        SessionLoading,
		CreatedAt:     s.Now(),
	}
	s.sessions[sess.ID] = sess
	return sess
}

func cloneSession(sess *TableSession) *TableSession {
	out := *sess
	out.PlayerIDs = append([]string(nil), sess.PlayerIDs...)
	out.CharacterRefs = append([]string(nil), sess.CharacterRefs...)
	if sess.StartedAt != nil {
		t := *sess.StartedAt
		out.StartedAt = &t
	}
	if sess.ClosedAt != nil {
		t := *sess.ClosedAt
		out.ClosedAt = &t
	}
	return &out
}
