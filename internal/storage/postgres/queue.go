package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kynortleon/TableHop/internal/queue"
)

// Store implements queue.MatchStore over a pgx pool: queue entries, table
// sessions, and the transactional match commit.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const entryColumns = `
	id, participant_id, role,
	COALESCE(scenario_code, ''), COALESCE(character_ref, ''),
	status, created_at`

// UpsertEntry creates or resets the participant's entry. Both branches set
// status Waiting and a fresh created_at, so a returning participant queues
// at the back.
func (s *Store) UpsertEntry(ctx context.Context, participantID string, role queue.Role, scenarioCode, characterRef string) (*queue.QueueEntry, error) {
	var out queue.QueueEntry
	err := s.db.QueryRow(ctx, `
		INSERT INTO queue_entries (id, participant_id, role, scenario_code, character_ref, status, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), 'WAITING', NOW())
		ON CONFLICT (participant_id) DO UPDATE SET
			role          = EXCLUDED.role,
			scenario_code = EXCLUDED.scenario_code,
			character_ref = EXCLUDED.character_ref,
			status        = 'WAITING',
			created_at    = NOW()
		RETURNING`+entryColumns,
		uuid.NewString(), participantID, string(role), scenarioCode, characterRef,
	).Scan(
		&out.ID, &out.ParticipantID, &out.Role,
		&out.ScenarioCode, &out.CharacterRef,
		&out.Status, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting queue entry: %w", err)
	}
	return &out, nil
}

// ListWaiting returns Waiting entries for the role, oldest first, ties
// broken by entry id.
func (s *Store) ListWaiting(ctx context.Context, role queue.Role) ([]*queue.QueueEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT`+entryColumns+`
		FROM queue_entries
		WHERE role = $1 AND status = 'WAITING'
		ORDER BY created_at ASC, id ASC`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("listing waiting entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*queue.QueueEntry, 0)
	for rows.Next() {
		var e queue.QueueEntry
		if err := rows.Scan(
			&e.ID, &e.ParticipantID, &e.Role,
			&e.ScenarioCode, &e.CharacterRef,
			&e.Status, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning queue entry row: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountWaiting returns the number of Waiting entries for the role.
func (s *Store) CountWaiting(ctx context.Context, role queue.Role) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE role = $1 AND status = 'WAITING'`,
		string(role),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting waiting entries: %w", err)
	}
	return n, nil
}

// MarkStatus batch-updates the status of the given entry IDs.
func (s *Store) MarkStatus(ctx context.Context, ids []string, status queue.EntryStatus) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE queue_entries SET status = $2 WHERE id = ANY($1)`,
		ids, string(status),
	)
	if err != nil {
		return fmt.Errorf("marking entry status: %w", err)
	}
	return nil
}

// FindByParticipant returns the participant's entry, or queue.ErrEntryNotFound.
func (s *Store) FindByParticipant(ctx context.Context, participantID string) (*queue.QueueEntry, error) {
	var out queue.QueueEntry
	err := s.db.QueryRow(ctx, `
		SELECT`+entryColumns+`
		FROM queue_entries WHERE participant_id = $1`,
		participantID,
	).Scan(
		&out.ID, &out.ParticipantID, &out.Role,
		&out.ScenarioCode, &out.CharacterRef,
		&out.Status, &out.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding queue entry: %w", err)
	}
	return &out, nil
}

// FormSession creates the Loading session and marks the host and player
// entries Matched in one transaction. A concurrent status change on any
// involved entry rolls the whole unit back.
func (s *Store) FormSession(ctx context.Context, host *queue.QueueEntry, players []*queue.QueueEntry) (*queue.TableSession, error) {
	playerIDs := make([]string, 0, len(players))
	characterRefs := make([]string, 0, len(players))
	entryIDs := make([]string, 0, len(players)+1)
	entryIDs = append(entryIDs, host.ID)
	for _, p := range players {
		playerIDs = append(playerIDs, p.ParticipantID)
		if p.CharacterRef != "" {
			characterRefs = append(characterRefs, p.CharacterRef)
		}
		entryIDs = append(entryIDs, p.ID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning match transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sess, err := insertSession(ctx, tx, host.ParticipantID, host.ScenarioCode, playerIDs, characterRefs)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE queue_entries SET status = 'MATCHED'
		WHERE id = ANY($1) AND status = 'WAITING'`,
		entryIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("marking matched entries: %w", err)
	}
	if int(tag.RowsAffected()) != len(entryIDs) {
		// Someone left or was matched since the cycle snapshot; abandon
		// the whole group rather than commit a partial table.
		return nil, fmt.Errorf("matched %d of %d entries, rolling back", tag.RowsAffected(), len(entryIDs))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing match transaction: %w", err)
	}
	return sess, nil
}
