// Package broadcast fans queue and table-session events out to all
// connected subscribers. Delivery is fire-and-forget: persistence is the
// source of truth and clients resynchronize through the status endpoint.
package broadcast

import "github.com/kynortleon/TableHop/internal/queue"

// Kind names an event on the wire. Clients filter by their own identity;
// no per-client filtering happens at this layer.
type Kind string

const (
	// KindQueueUpdate carries the current waiting counts.
	KindQueueUpdate Kind = "queueUpdate"
	// KindJoinedQueue carries the upserted entry after a join.
	KindJoinedQueue Kind = "joinedQueue"
	// KindTableCreated carries a freshly formed table session.
	KindTableCreated Kind = "tableCreated"
	// KindAdStart announces the pre-session delay countdown.
	KindAdStart Kind = "adStart"
	// KindTableClosed announces a closed table session.
	KindTableClosed Kind = "tableClosed"
)

// Event is the envelope published to subscribers.
type Event struct {
	Kind    Kind `json:"event"`
	Payload any  `json:"payload"`
}

// QueueCounts is the queueUpdate payload. The field names are part of the
// client protocol.
type QueueCounts struct {
	WaitingPlayers int `json:"waitingPlayers"`
	WaitingDMs     int `json:"waitingDMs"`
}

// AdStart is the adStart payload: the delay countdown in whole seconds.
type AdStart struct {
	SessionID string `json:"sessionId"`
	Seconds   int    `json:"seconds"`
}

// TableClosed is the tableClosed payload.
type TableClosed struct {
	SessionID string `json:"sessionId"`
}

// JoinedQueue is the joinedQueue payload.
type JoinedQueue struct {
	Entry *queue.QueueEntry `json:"entry"`
}
