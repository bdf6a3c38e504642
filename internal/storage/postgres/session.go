package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kynortleon/TableHop/internal/queue"
)

const sessionColumns = `
	id, host_id, scenario_code, player_ids, character_refs,
	status, started_at, closed_at, COALESCE(duration_minutes, 0), created_at`

// rowScanner covers pgx.Row for both pool and transaction queries.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*queue.TableSession, error) {
	var out queue.TableSession
	err := row.Scan(
		&out.ID, &out.HostID, &out.ScenarioCode,
		&out.PlayerIDs, &out.CharacterRefs,
		&out.Status, &out.StartedAt, &out.ClosedAt,
		&out.DurationMinutes, &out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func insertSession(ctx context.Context, tx pgx.Tx, hostID, scenarioCode string, playerIDs, characterRefs []string) (*queue.TableSession, error) {
	sess, err := scanSession(tx.QueryRow(ctx, `
		INSERT INTO table_sessions (id, host_id, scenario_code, player_ids, character_refs, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'LOADING', NOW())
		RETURNING`+sessionColumns,
		uuid.NewString(), hostID, scenarioCode, playerIDs, characterRefs,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting table session: %w", err)
	}
	return sess, nil
}

// Create inserts a new Loading session outside any match transaction.
func (s *Store) Create(ctx context.Context, hostID, scenarioCode string, playerIDs, characterRefs []string) (*queue.TableSession, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sess, err := insertSession(ctx, tx, hostID, scenarioCode, playerIDs, characterRefs)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return sess, nil
}

// Update applies the non-nil fields and returns the updated record, or
// queue.ErrSessionNotFound.
func (s *Store) Update(ctx context.Context, id string, fields queue.SessionUpdate) (*queue.TableSession, error) {
	set := make([]string, 0, 4)
	args := []any{id}

	appendArg := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if fields.Status != nil {
		appendArg("status", string(*fields.Status))
	}
	if fields.StartedAt != nil {
		appendArg("started_at", *fields.StartedAt)
	}
	if fields.ClosedAt != nil {
		appendArg("closed_at", *fields.ClosedAt)
	}
	if fields.DurationMinutes != nil {
		appendArg("duration_minutes", *fields.DurationMinutes)
	}
	if len(set) == 0 {
		return s.FindByID(ctx, id)
	}

	sess, err := scanSession(s.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE table_sessions SET %s WHERE id = $1 RETURNING`+sessionColumns,
			strings.Join(set, ", ")),
		args...,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating table session: %w", err)
	}
	return sess, nil
}

// FindByID returns the session, or queue.ErrSessionNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (*queue.TableSession, error) {
	sess, err := scanSession(s.db.QueryRow(ctx, `
		SELECT`+sessionColumns+`
		FROM table_sessions WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, queue.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding table session: %w", err)
	}
	return sess, nil
}
