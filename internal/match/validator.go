package match

import (
	"context"

	"github.com/kynortleon/TableHop/internal/queue"
)

// Validator decides whether a host/player pairing is allowed and whether a
// player is eligible for a scenario. Implementations may be backed by
// remote state and are allowed to block; the engine calls them with the
// cycle's context.
type Validator interface {
	// IsBlocked reports whether the host has excluded this player (or vice
	// versa).
	IsBlocked(ctx context.Context, host, player *queue.QueueEntry) (bool, error)

	// IsEligible reports whether the player's character may play the
	// scenario.
	IsEligible(ctx context.Context, player *queue.QueueEntry, scenarioCode string) (bool, error)
}

// AllowAll is the default Validator: no pairing is blocked, and any player
// carrying a character reference is eligible for any named scenario.
type AllowAll struct{}

// IsBlocked always reports false.
func (AllowAll) IsBlocked(ctx context.Context, host, player *queue.QueueEntry) (bool, error) {
	return false, nil
}

// IsEligible reports true iff the player has a character reference and the
// scenario code is non-empty.
func (AllowAll) IsEligible(ctx context.Context, player *queue.QueueEntry, scenarioCode string) (bool, error) {
	return player.CharacterRef != "" && scenarioCode != "", nil
}
