package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEntryNotFound is returned when a queue entry lookup yields no results.
var ErrEntryNotFound = errors.New("queue entry not found")

// ErrSessionNotFound is returned when a session lookup yields no results.
var ErrSessionNotFound = errors.New("table session not found")

// QueueStore persists waiting-pool entries.
type QueueStore interface {
	// UpsertEntry creates or resets the entry for participantID. The entry
	// comes back Waiting with a fresh CreatedAt; scenarioCode and
	// characterRef may be empty depending on role.
	//
	// Postcondition: exactly one entry exists for participantID and it is Waiting.
	UpsertEntry(ctx context.Context, participantID string, role Role, scenarioCode, characterRef string) (*QueueEntry, error)

	// ListWaiting returns all Waiting entries for the role ordered by
	// CreatedAt ascending, ties broken by entry ID.
	ListWaiting(ctx context.Context, role Role) ([]*QueueEntry, error)

	// CountWaiting returns the number of Waiting entries for the role.
	CountWaiting(ctx context.Context, role Role) (int, error)

	// MarkStatus batch-updates the status of the given entry IDs.
	MarkStatus(ctx context.Context, ids []string, status EntryStatus) error

	// FindByParticipant returns the participant's entry, or ErrEntryNotFound.
	FindByParticipant(ctx context.Context, participantID string) (*QueueEntry, error)
}

// SessionUpdate carries the mutable table-session fields. Nil fields are
// left unchanged.
type SessionUpdate struct {
	Status          *SessionStatus
	StartedAt       *time.Time
	ClosedAt        *time.Time
	DurationMinutes *int
}

// SessionStore persists formed table sessions.
type SessionStore interface {
	// Create inserts a new session with status Loading.
	Create(ctx context.Context, hostID, scenarioCode string, playerIDs, characterRefs []string) (*TableSession, error)

	// Update applies the non-nil fields and returns the updated record, or
	// ErrSessionNotFound.
	Update(ctx context.Context, id string, fields SessionUpdate) (*TableSession, error)

	// FindByID returns the session, or ErrSessionNotFound.
	FindByID(ctx context.Context, id string) (*TableSession, error)
}

// MatchStore combines both stores with the one atomic unit the matching
// engine needs: committing a formed group.
type MatchStore interface {
	QueueStore
	SessionStore

	// FormSession creates a Loading session for the host and players and
	// marks all of their entries Matched as a single atomic unit. On error
	// nothing is persisted.
	FormSession(ctx context.Context, host *QueueEntry, players []*QueueEntry) (*TableSession, error)
}
