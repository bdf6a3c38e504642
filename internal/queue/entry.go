// Package queue defines the waiting-pool and table-session data model and
// the store contracts the matchmaker and lifecycle scheduler operate on.
package queue

import "time"

// Role distinguishes table hosts from players in the waiting pool.
type Role string

const (
	// RoleHost marks an entry as a table host running a scenario.
	RoleHost Role = "HOST"
	// RolePlayer marks an entry as a player waiting with a character.
	RolePlayer Role = "PLAYER"
)

// EntryStatus is the lifecycle state of a queue entry.
// Waiting is the only non-terminal status; Matched and Left are terminal.
type EntryStatus string

const (
	StatusWaiting EntryStatus = "WAITING"
	StatusMatched EntryStatus = "MATCHED"
	StatusLeft    EntryStatus = "LEFT"
)

// QueueEntry is one participant's place in the waiting pool.
//
// Invariant: a participant has at most one row, so there is at most one
// Waiting entry per participant at a time. Re-joining upserts the row back
// to Waiting with a fresh CreatedAt, sending the participant to the back of
// the queue.
type QueueEntry struct {
	// ID is the unique entry identifier, assigned at creation.
	ID string `json:"id"`
	// ParticipantID is the external identity of the waiting person.
	ParticipantID string `json:"participantId"`
	// Role is Host or Player.
	Role Role `json:"role"`
	// ScenarioCode identifies the scenario a host is running. Host entries only.
	ScenarioCode string `json:"scenarioCode,omitempty"`
	// CharacterRef is an opaque character reference resolved by the
	// eligibility validator. Player entries only.
	CharacterRef string `json:"characterRef,omitempty"`
	// Status is Waiting, Matched, or Left.
	Status EntryStatus `json:"status"`
	// CreatedAt defines match priority: oldest entries are served first.
	CreatedAt time.Time `json:"createdAt"`
}

// IsWaiting reports whether the entry is still in the waiting pool.
func (e *QueueEntry) IsWaiting() bool {
	return e.Status == StatusWaiting
}
