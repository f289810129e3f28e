package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helpdesk-sla/sla-service/internal/domain"
	"github.com/helpdesk-sla/sla-service/internal/sla"
)

const uniqueViolation = "23505"

// PauseRepository is the Postgres-backed pause ledger store.
type PauseRepository interface {
	sla.PauseStore
}

type pauseRepository struct {
	pool *pgxpool.Pool
}

// NewPauseRepository builds the repository.
func NewPauseRepository(pool *pgxpool.Pool) PauseRepository {
	return &pauseRepository{pool: pool}
}

func (r *pauseRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.PauseInterval, error) {
	const query = `
        SELECT id, ticket_id, reason, started_at, ended_at, created_at
        FROM sla_pause_intervals WHERE ticket_id=$1 ORDER BY started_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PauseInterval
	for rows.Next() {
		var (
			interval domain.PauseInterval
			reason   string
		)
		if err := rows.Scan(
			&interval.ID,
			&interval.TicketID,
			&reason,
			&interval.StartedAt,
			&interval.EndedAt,
			&interval.CreatedAt,
		); err != nil {
			return nil, err
		}
		interval.Reason = domain.PauseReason(reason)
		result = append(result, interval)
	}
	return result, rows.Err()
}

// Create inserts an open interval. The partial unique index on open intervals turns
// a concurrent double pause into sla.ErrAlreadyPaused.
func (r *pauseRepository) Create(ctx context.Context, interval *domain.PauseInterval) error {
	const query = `
        INSERT INTO sla_pause_intervals (id, ticket_id, reason, started_at)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	err := r.pool.QueryRow(ctx, query,
		interval.ID,
		interval.TicketID,
		string(interval.Reason),
		interval.StartedAt,
	).Scan(&interval.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return sla.ErrAlreadyPaused
	}
	return err
}

func (r *pauseRepository) Close(ctx context.Context, intervalID string, endedAt time.Time) error {
	const query = `
        UPDATE sla_pause_intervals SET ended_at=$1
        WHERE id=$2 AND ended_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, endedAt, intervalID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return sla.ErrNotPaused
	}
	return nil
}
