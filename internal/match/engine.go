// Package match forms table sessions from the waiting pool. A cycle scans
// waiting hosts oldest-first and fills each table with the oldest eligible
// waiting players; formed groups are committed atomically and handed to the
// lifecycle scheduler.
package match

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/broadcast"
	"github.com/kynortleon/TableHop/internal/monitoring"
	"github.com/kynortleon/TableHop/internal/queue"
)

// FailReason explains why a host's attempt did not form a table. The
// priority when several conditions occurred is blocked > ineligible >
// insufficient.
type FailReason string

const (
	// ReasonBlocked: at least one candidate pairing was disallowed and the
	// table still could not be filled.
	ReasonBlocked FailReason = "blocked"
	// ReasonIneligible: at least one candidate failed scenario eligibility
	// and the table still could not be filled.
	ReasonIneligible FailReason = "ineligible"
	// ReasonInsufficient: not enough waiting players at all, or the host
	// entry itself was invalid.
	ReasonInsufficient FailReason = "insufficient"
)

// Tracker receives ownership of freshly formed sessions.
type Tracker interface {
	Track(sess *queue.TableSession)
}

// Engine runs match cycles over a MatchStore. One Engine exists per
// process and its cycles never overlap (the Driver serializes them).
type Engine struct {
	store     queue.MatchStore
	validator Validator
	events    *broadcast.Broadcaster
	tracker   Tracker
	groupSize int
	logger    *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: store, validator, events, tracker, and logger must be
// non-nil; groupSize must be > 0.
func NewEngine(store queue.MatchStore, validator Validator, events *broadcast.Broadcaster, tracker Tracker, groupSize int, logger *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		validator: validator,
		events:    events,
		tracker:   tracker,
		groupSize: groupSize,
		logger:    logger,
	}
}

// RunMatchCycle performs one full pass over the waiting pool. The snapshot
// read at the start is treated as immutable for the whole cycle; joins and
// leaves that land mid-cycle are picked up next time.
//
// Per-host failures are logged and never abort the cycle. Only an
// unreadable waiting pool returns an error, to be retried at the next
// interval.
//
// Postcondition: zero or more sessions are created, each with its host and
// players marked Matched atomically; a player consumed by an earlier host
// is unavailable to later hosts in the same cycle.
func (e *Engine) RunMatchCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { monitoring.ObserveCycle(time.Since(start).Seconds()) }()

	hosts, err := e.store.ListWaiting(ctx, queue.RoleHost)
	if err != nil {
		return fmt.Errorf("listing waiting hosts: %w", err)
	}
	if len(hosts) == 0 {
		return nil
	}

	players, err := e.store.ListWaiting(ctx, queue.RolePlayer)
	if err != nil {
		return fmt.Errorf("listing waiting players: %w", err)
	}
	if len(players) == 0 {
		return nil
	}

	for _, host := range hosts {
		group, reason := e.formCandidateGroup(ctx, host, players)
		if group == nil {
			monitoring.MatchFailed(string(reason))
			e.logger.Debug("no table formed",
				zap.String("host", host.ParticipantID),
				zap.String("reason", string(reason)),
			)
			continue
		}

		players = withoutEntries(players, group)

		sess, err := e.store.FormSession(ctx, host, group)
		if err != nil {
			// Nothing was committed for this host; the entries stay
			// Waiting and the next cycle retries.
			e.logger.Error("committing formed table",
				zap.String("host", host.ParticipantID),
				zap.Error(err),
			)
			continue
		}

		monitoring.SessionFormed()
		e.logger.Info("table formed",
			zap.String("session", sess.ID),
			zap.String("host", sess.HostID),
			zap.String("scenario", sess.ScenarioCode),
			zap.Int("players", len(sess.PlayerIDs)),
		)

		e.events.PublishSessionFormed(sess)
		e.tracker.Track(sess)
		e.events.PublishQueueCounts(ctx)
	}
	return nil
}

// formCandidateGroup scans the remaining players in time order and accepts
// the first groupSize unblocked, eligible candidates. On failure the
// returned group is nil and the reason follows the blocked > ineligible >
// insufficient priority.
//
// A host without a scenario code is invalid input and fails insufficient
// without consulting the validator. Validator errors skip the pairing for
// this cycle and count as ineligible.
func (e *Engine) formCandidateGroup(ctx context.Context, host *queue.QueueEntry, players []*queue.QueueEntry) ([]*queue.QueueEntry, FailReason) {
	if host.ScenarioCode == "" {
		return nil, ReasonInsufficient
	}

	var (
		selected   []*queue.QueueEntry
		blocked    bool
		ineligible bool
	)

	for _, p := range players {
		// The snapshot should only hold Waiting player entries with
		// characters; skip anything else.
		if p.Role == queue.RoleHost || !p.IsWaiting() || p.CharacterRef == "" {
			continue
		}

		isBlocked, err := e.validator.IsBlocked(ctx, host, p)
		if err != nil {
			e.logger.Warn("block check failed",
				zap.String("host", host.ParticipantID),
				zap.String("player", p.ParticipantID),
				zap.Error(err),
			)
			ineligible = true
			continue
		}
		if isBlocked {
			blocked = true
			continue
		}

		ok, err := e.validator.IsEligible(ctx, p, host.ScenarioCode)
		if err != nil {
			e.logger.Warn("eligibility check failed",
				zap.String("player", p.ParticipantID),
				zap.String("scenario", host.ScenarioCode),
				zap.Error(err),
			)
			ineligible = true
			continue
		}
		if !ok {
			ineligible = true
			continue
		}

		selected = append(selected, p)
		if len(selected) == e.groupSize {
			return selected, ""
		}
	}

	switch {
	case blocked:
		return nil, ReasonBlocked
	case ineligible:
		return nil, ReasonIneligible
	default:
		return nil, ReasonInsufficient
	}
}

// withoutEntries returns pool minus the consumed entries, preserving order.
func withoutEntries(pool, consumed []*queue.QueueEntry) []*queue.QueueEntry {
	taken := make(map[string]struct{}, len(consumed))
	for _, c := range consumed {
		taken[c.ID] = struct{}{}
	}
	out := pool[:0]
	for _, p := range pool {
		if _, ok := taken[p.ID]; !ok {
			out = append(out, p)
		}
	}
	return out
}
