package broadcast

import (
	"context"

	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/monitoring"
	"github.com/kynortleon/TableHop/internal/queue"
)

// Broadcaster is the stateless publish surface over the Hub. It recomputes
// queue counts from the store on demand; everything else is forwarded
// verbatim. Failures never propagate to callers.
type Broadcaster struct {
	hub    *Hub
	queues queue.QueueStore
	logger *zap.Logger
}

// NewBroadcaster creates a Broadcaster.
//
// Precondition: hub, queues, and logger must be non-nil.
func NewBroadcaster(hub *Hub, queues queue.QueueStore, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, queues: queues, logger: logger}
}

// PublishQueueCounts recomputes the waiting counts for both roles and
// broadcasts them. Called after every join, leave, and match cycle. A store
// read failure is logged and the update skipped; the next mutation
// republishes.
func (b *Broadcaster) PublishQueueCounts(ctx context.Context) {
	players, err := b.queues.CountWaiting(ctx, queue.RolePlayer)
	if err != nil {
		b.logger.Warn("counting waiting players", zap.Error(err))
		return
	}
	hosts, err := b.queues.CountWaiting(ctx, queue.RoleHost)
	if err != nil {
		b.logger.Warn("counting waiting hosts", zap.Error(err))
		return
	}
	monitoring.SetWaiting(players, hosts)
	b.hub.Publish(Event{Kind: KindQueueUpdate, Payload: QueueCounts{
		WaitingPlayers: players,
		WaitingDMs:     hosts,
	}})
}

// PublishJoined broadcasts the upserted entry after a join.
func (b *Broadcaster) PublishJoined(entry *queue.QueueEntry) {
	b.hub.Publish(Event{Kind: KindJoinedQueue, Payload: JoinedQueue{Entry: entry}})
}

// PublishSessionFormed broadcasts a freshly formed table session.
func (b *Broadcaster) PublishSessionFormed(sess *queue.TableSession) {
	b.hub.Publish(Event{Kind: KindTableCreated, Payload: sess})
}

// PublishStageStarted announces the pre-session delay countdown in whole
// seconds.
func (b *Broadcaster) PublishStageStarted(sessionID string, seconds int) {
	b.hub.Publish(Event{Kind: KindAdStart, Payload: AdStart{SessionID: sessionID, Seconds: seconds}})
}

// PublishSessionClosed announces a closed table session.
func (b *Broadcaster) PublishSessionClosed(sessionID string) {
	b.hub.Publish(Event{Kind: KindTableClosed, Payload: TableClosed{SessionID: sessionID}})
}
