package queue

import "time"

// SessionStatus is the table-session state machine:
// Loading --(delay elapses)--> Active --(session duration elapses)--> Closed.
type SessionStatus string

const (
	// SessionLoading is a freshly formed table in its announcement stage.
	SessionLoading SessionStatus = "LOADING"
	// SessionActive is a table whose delay has elapsed and is in progress.
	SessionActive SessionStatus = "ACTIVE"
	// SessionClosed is terminal.
	SessionClosed SessionStatus = "CLOSED"
)

// TableSession is a formed group: one host, a fixed-size set of players,
// and the timed lifecycle driven by the scheduler.
//
// Ownership: created exclusively by the matching engine, mutated exclusively
// by the lifecycle scheduler, read by the broadcaster and external UI.
type TableSession struct {
	ID           string `json:"id"`
	HostID       string `json:"hostId"`
	ScenarioCode string `json:"scenarioCode"`
	// PlayerIDs is ordered by match priority; its length equals the
	// configured group size.
	PlayerIDs     []string      `json:"playerIds"`
	CharacterRefs []string      `json:"characterRefs"`
	Status        SessionStatus `json:"status"`
	// StartedAt is set on the Loading -> Active transition.
	StartedAt *time.Time `json:"startedAt,omitempty"`
	// ClosedAt is set on the Active -> Closed transition.
	ClosedAt *time.Time `json:"closedAt,omitempty"`
	// DurationMinutes is computed at close time, floored at the configured
	// minimum regardless of measured elapsed time.
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
